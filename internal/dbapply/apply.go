// Package dbapply installs compiled SQL into a PostgreSQL database.
// All statements run in a single transaction so a failed apply leaves
// the schema untouched.
package dbapply

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/specql/specql/compiler"
	"github.com/specql/specql/internal/pkg/logger"
)

// Runner applies SQL scripts to the database at URL.
type Runner struct {
	URL string
}

// Apply executes the scripts in order inside one transaction.
// Each script may contain multiple statements.
func (r *Runner) Apply(ctx context.Context, scripts []string) error {
	runID := uuid.NewString()
	log := logger.From(ctx).With("run_id", runID)

	conn, err := pgx.Connect(ctx, r.URL)
	if err != nil {
		return compiler.WrapContractError(compiler.StageApply, compiler.ErrCodeApplyConnect,
			"connect", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return compiler.WrapContractError(compiler.StageApply, compiler.ErrCodeApplyConnect,
			"begin", err)
	}
	defer tx.Rollback(ctx)

	for i, script := range scripts {
		if _, err := tx.Exec(ctx, script); err != nil {
			return compiler.WrapContractError(compiler.StageApply, compiler.ErrCodeApplyExec,
				fmt.Sprintf("script %d of %d", i+1, len(scripts)), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return compiler.WrapContractError(compiler.StageApply, compiler.ErrCodeApplyExec,
			"commit", err)
	}

	log.Info("apply complete", "scripts", len(scripts))
	return nil
}
