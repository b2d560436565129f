package main

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/hupe1980/kpool"
)

// workerStats counts the outcomes of one worker.
type workerStats struct {
	gets, puts, failures int
}

// worker randomly takes and returns items until ctx is done, then returns
// everything it still holds.
func worker(ctx context.Context, id int, pools []*kpool.Pool, specs []PoolSpec) (st workerStats, err error) {
	rng := rand.New(rand.NewPCG(uint64(id), 0x6b706f6f6c))
	held := make([][][]byte, len(pools))

	defer func() {
		for i, items := range held {
			for _, item := range items {
				pools[i].Put(item)
				st.puts++
			}
		}
	}()

	for ctx.Err() == nil {
		i := rng.IntN(len(pools))
		p := pools[i]

		if n := len(held[i]); n > 0 && (n >= specs[i].Hold || rng.IntN(2) == 0) {
			j := rng.IntN(n)
			p.Put(held[i][j])
			held[i][j] = held[i][n-1]
			held[i] = held[i][:n-1]
			st.puts++
			continue
		}

		flags := kpool.NoWait
		if rng.IntN(8) == 0 {
			flags |= kpool.Zero
		}
		item, gerr := p.Get(ctx, flags)
		switch {
		case gerr == nil:
			held[i] = append(held[i], item)
			st.gets++
		case errors.Is(gerr, kpool.ErrResourceExhausted), errors.Is(gerr, kpool.ErrLimitExceeded):
			st.failures++
		case ctx.Err() != nil:
			return st, nil
		default:
			return st, gerr
		}
	}
	return st, nil
}
