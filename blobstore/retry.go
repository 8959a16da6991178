// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	retryInitialInterval = 10 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
	retryMaxElapsed      = 10 * time.Second
)

// isBusy reports whether err is a transient lock conflict.
func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// retry runs op until it succeeds, fails with an error other than a lock
// conflict, or the retry budget is exhausted.
func retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	//nolint:wrapcheck // errors are wrapped by op.
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !isBusy(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(retryMaxElapsed))
}

// retryExec is retry for operations with no result.
func retryExec(ctx context.Context, op func() error) error {
	_, err := retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
