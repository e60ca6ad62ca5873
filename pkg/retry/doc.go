// Package retry runs an operation with exponential backoff.
//
// It is used for the run journal writes and for the Telegram API HTTP
// client, where transient failures are common and a short backoff is
// enough.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return store.Record(ctx, run)
//	})
//
// Return retry.Permanent(err) from the operation to stop immediately.
// Custom classification:
//
//	err := retry.DoWithRetryable(ctx, cfg, fn, retry.Always)
package retry
