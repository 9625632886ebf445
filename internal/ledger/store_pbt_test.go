package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tx-ledger/internal/types"
)

const propCapacity = 5

func TestStoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("size never exceeds capacity and the oldest are evicted first", prop.ForAll(
		func(timestamps []int64) bool {
			ctx := context.Background()
			store := newTestStore(t, nil, propCapacity)
			for _, ts := range timestamps {
				if _, err := store.Add(ctx, types.TransactionDraft{Type: types.TypeDeposit, Timestamp: ts}); err != nil {
					return false
				}
				if len(store.GetAll(ctx)) > propCapacity {
					return false
				}
			}

			want := append([]int64(nil), timestamps...)
			sort.Slice(want, func(i, j int) bool { return want[i] > want[j] })
			if len(want) > propCapacity {
				want = want[:propCapacity]
			}

			got := store.GetAll(ctx)
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i].Timestamp != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(1, 1_000_000)),
	))

	properties.Property("ids are unique and no two records share a hash", prop.ForAll(
		func(hashes []int) bool {
			ctx := context.Background()
			store := newTestStore(t, nil, 0)
			for _, h := range hashes {
				draft := types.TransactionDraft{Type: types.TypeBridge}
				if h > 0 {
					draft.TxHash = fmt.Sprintf("0x%x", h)
				}
				if _, err := store.Add(ctx, draft); err != nil {
					return false
				}
			}

			ids := make(map[string]bool)
			seen := make(map[string]bool)
			for _, tx := range store.GetAll(ctx) {
				if ids[tx.ID] {
					return false
				}
				ids[tx.ID] = true
				if tx.TxHash != "" {
					if seen[tx.TxHash] {
						return false
					}
					seen[tx.TxHash] = true
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.Property("import of an export is a fixed point", prop.ForAll(
		func(hashes []int) bool {
			ctx := context.Background()
			store := newTestStore(t, nil, 0)
			for i, h := range hashes {
				draft := types.TransactionDraft{Type: types.TypeStake, Timestamp: int64(i + 1)}
				if h > 0 {
					draft.TxHash = fmt.Sprintf("0x%x", h)
				}
				if _, err := store.Add(ctx, draft); err != nil {
					return false
				}
			}

			before := store.GetAll(ctx)
			exported, err := store.ExportAll(ctx)
			if err != nil {
				return false
			}
			ok, err := store.ImportAll(ctx, exported)
			if err != nil || !ok {
				return false
			}
			after := store.GetAll(ctx)
			if len(before) != len(after) {
				return false
			}
			for i := range before {
				if before[i].ID != after[i].ID || before[i].Status != after[i].Status {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.Property("empty criteria filter returns everything", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			store := newTestStore(t, nil, 0)
			for i := 0; i < n; i++ {
				if _, err := store.Add(ctx, types.TransactionDraft{Type: types.TypeRepay, Timestamp: int64(i + 1)}); err != nil {
					return false
				}
			}
			return len(store.Filter(ctx, types.FilterCriteria{})) == len(store.GetAll(ctx))
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
