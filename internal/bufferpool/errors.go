package bufferpool

import "go.uber.org/multierr"

// joinErr aggregates flush errors from FlushAll/FlushFileSet so one bad
// page does not stop the rest of the pool from being flushed.
func joinErr(errs, err error) error {
	return multierr.Append(errs, err)
}
