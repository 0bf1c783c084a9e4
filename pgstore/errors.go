package pgstore

import (
	"errors"

	"github.com/bloggyhq/bloggy"
	"github.com/lib/pq"
)

// SQLSTATE codes after which a unit of work can be attempted again.
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available, raised when lock_timeout expires
	"23505": true, // unique_violation, two first votes racing on the same pair
}

// mapTxError turns contention errors raised inside a unit of work into ConflictRetry errors.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && retryableCodes[pqErr.Code] {
		return bloggy.ConflictRetry(err)
	}

	return err
}
