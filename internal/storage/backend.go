// Package storage provides the persistence media behind the ledger: named slots
// that each hold one serialized document, plus the ClickHouse eviction archive.
package storage

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when a backend refuses a write because it is full
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend is a medium of named slots. A missing slot is reported with found == false,
// never as an error.
type Backend interface {
	Get(ctx context.Context, slot string) (data []byte, found bool, err error)
	Set(ctx context.Context, slot string, data []byte) error
	Delete(ctx context.Context, slot string) error
}
