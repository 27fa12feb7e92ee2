// Package services implements the version-control engine's operations on
// top of the repository layer: branch lifecycle, commits, merges and
// snapshot archival. Transport adapters call into these services.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/versions"
)

const txMaxRetries = 5

// runSerializableTx executes fn inside a serializable transaction and
// retries it when the database reports a serialization failure or the
// unique head index rejects a lost race. Each retry re-reads the branch
// head, so the losing writer stacks on top of the winner instead of
// overwriting it. onRetry, if set, is called before every retry.
func runSerializableTx(ctx context.Context, db *sql.DB, onRetry func(), fn func(ctx context.Context, tx dbx.DBTX) error) error {
	backoff := retry.WithMaxRetries(txMaxRetries, retry.NewExponential(5*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := dbx.WithSerializableTx(ctx, db, fn)
		if err != nil && versions.RetryablePgError(err) {
			if onRetry != nil {
				onRetry()
			}
			return retry.RetryableError(err)
		}
		return err
	})
}
