package txn

import "go.uber.org/multierr"

// joinAbortErr aggregates per-record rollback failures during Abort so one
// bad reversal does not stop the rest of the write set from being undone.
func joinAbortErr(errs, err error) error {
	return multierr.Append(errs, err)
}
