// Package resource implements the Controller for process-wide page budgets
// and background reclaim governance.
//
// The Controller manages three resource types:
//
//   - Memory: Track and limit page memory across all pools
//   - Concurrency: Limit concurrent background reclaim passes
//   - Reclaim pacing: Token bucket on pages returned by background reclaim
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. TryAcquireMemory fails fast; AcquireMemory blocks until
// another page is released or the context ends:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if !rc.TryAcquireMemory(4096) {
//	    // caller decides: fail or block with AcquireMemory(ctx, 4096)
//	}
//	defer rc.ReleaseMemory(4096)
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
