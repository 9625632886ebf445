package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/tx-ledger/internal/logging"
)

// Start runs an initial refresh and the background poller. The poller's
// ticker is armed only while a stored record is pending.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	o.logger.WithField("interval", o.interval.String()).Info("starting ledger poller")

	go o.pollLoop(ctx)

	if err := o.Refresh(ctx); err != nil {
		o.logger.WithError(err).Warn("initial refresh failed")
	}
	return nil
}

// Close stops the poller and cancels any pass in flight
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	started := o.started
	o.mu.Unlock()

	o.cancel()
	close(o.stopCh)
	if started {
		select {
		case <-o.doneCh:
		case <-time.After(5 * time.Second):
			o.logger.Warn("poller did not stop within 5s")
		}
	}
	o.logger.Info("ledger poller stopped")
}

// PollerArmed reports whether the background ticker is running
func (o *Orchestrator) PollerArmed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.armed
}

// signal wakes the poller to re-evaluate whether it should be armed
func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) pollLoop(ctx context.Context) {
	defer close(o.doneCh)

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		o.mu.Lock()
		pending := o.hasPending
		o.mu.Unlock()

		switch {
		case pending && ticker == nil:
			ticker = time.NewTicker(o.interval)
			tick = ticker.C
			o.setArmed(true)
			o.logger.Debug("pending transactions held, poller armed")
		case !pending && ticker != nil:
			ticker.Stop()
			ticker, tick = nil, nil
			o.setArmed(false)
			o.logger.Debug("no pending transactions, poller disarmed")
		}

		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-o.wake:
		case <-tick:
			if o.inFlight() {
				o.logger.Debug("refresh in flight, skipping tick")
				continue
			}
			if err := o.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
				o.logger.WithError(err).WithFields(logging.Fields{"trigger": "poll"}).Warn("periodic refresh failed")
			}
		}
	}
}

func (o *Orchestrator) setArmed(armed bool) {
	o.mu.Lock()
	o.armed = armed
	o.mu.Unlock()
}
