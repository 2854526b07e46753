package relay

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// VendorWorkerPool bounds concurrent blocking Speech Vendor Facade calls
// (STT, translate, TTS) so they cannot starve the rest of the fabric. Per
// spec §5, this pool is never shared with unrelated blocking work.
type VendorWorkerPool struct {
	sem *semaphore.Weighted
}

func NewVendorWorkerPool(size int) *VendorWorkerPool {
	if size <= 0 {
		size = 1
	}
	return &VendorWorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// Do blocks until a slot is free (or ctx is done), runs fn, then releases
// the slot. Returns ctx.Err() without running fn if the context is
// cancelled while waiting for a slot.
func (p *VendorWorkerPool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
