package sheetvec

import "context"

// checkCancelled reports ErrCancelled if ctx is already done. It is
// polled between rows in long-running scans (List, ListContentHashes,
// Query's retry loop) so a cancelled context stops work promptly instead
// of waiting for the next blocking database call to notice.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}
