package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

const DefaultMaxRetries = 3

// Try executes an operation, retrying with fresh IDs when an insert collides
// on a unique index. Used for inserts whose _id is generated per attempt.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries)
}

// WithRetries executes an operation up to 1+maxRetries times, retrying only on
// duplicate-key errors with a small incremental backoff.
func WithRetries(op Operation, maxRetries int) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		if IsDuplicateKeyError(err) {
			time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
			continue
		}
		return err
	}
	return err
}

// IsDuplicateKeyError checks if an error from MongoDB is a duplicate key
// error (code 11000). The conversation store relies on this to turn the loser
// of a concurrent get-or-create race into a re-fetch instead of a failure.
func IsDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
