package pagesource

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/kpool/resource"
)

// Budgeted charges every page of an underlying Source against a shared
// memory budget. NoWait requests fail with ErrExhausted when the budget is
// spent; WaitOK requests block until another page is freed.
type Budgeted struct {
	src  Source
	ctrl *resource.Controller
}

// WithBudget wraps src with a memory limit of limitBytes.
func WithBudget(src Source, limitBytes int64) *Budgeted {
	return NewBudgeted(src, resource.NewController(resource.Config{
		MemoryLimitBytes: limitBytes,
	}))
}

// NewBudgeted wraps src with an existing controller, so several sources can
// share one budget.
func NewBudgeted(src Source, ctrl *resource.Controller) *Budgeted {
	return &Budgeted{src: src, ctrl: ctrl}
}

// Alloc implements Source.
func (b *Budgeted) Alloc(ctx context.Context, size, align int, wait WaitPolicy) ([]byte, error) {
	n := int64(size)
	if wait == WaitOK {
		if err := b.ctrl.AcquireMemory(ctx, n); err != nil {
			if errors.Is(err, resource.ErrMemoryLimitExceeded) {
				return nil, fmt.Errorf("%w: %w", ErrExhausted, err)
			}
			return nil, err
		}
	} else if !b.ctrl.TryAcquireMemory(n) {
		return nil, fmt.Errorf("%w: %w", ErrExhausted, resource.ErrMemoryLimitExceeded)
	}

	page, err := b.src.Alloc(ctx, size, align, wait)
	if err != nil {
		b.ctrl.ReleaseMemory(n)
		return nil, err
	}
	return page, nil
}

// Free implements Source.
func (b *Budgeted) Free(page []byte) {
	b.src.Free(page)
	b.ctrl.ReleaseMemory(int64(len(page)))
}

// PageSize implements Source.
func (b *Budgeted) PageSize() int { return b.src.PageSize() }

// Controller returns the controller the budget is charged against.
func (b *Budgeted) Controller() *resource.Controller { return b.ctrl }
