// Package retry re-runs short local operations that fail for transient
// reasons, such as a round commit hitting a locked database.
//
// Provider calls are never retried here: a failed batch is left unprocessed
// and picked up by the next pass.
//
//	err := retry.Do(ctx, retry.Config{
//		MaxAttempts: 5,
//		Backoff:     retry.CommitBackoff(),
//		RetryIf:     store.IsBusy,
//	}, func() error {
//		return tx.Commit()
//	})
package retry
