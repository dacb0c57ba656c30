package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateCycles = `
        CREATE TABLE IF NOT EXISTS uipilot_cycles (
            id UUID PRIMARY KEY,
            run_id TEXT NOT NULL,
            cycle INTEGER NOT NULL,
            command TEXT NOT NULL,
            fingerprint TEXT NOT NULL,
            plan_text TEXT NOT NULL,
            plan_summary TEXT NOT NULL,
            success BOOLEAN NOT NULL,
            macro_complete BOOLEAN NOT NULL,
            error_code TEXT NOT NULL,
            feedback TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT NOT NULL
        );
    `
	sqlCreateCyclesIndex = `
        CREATE INDEX IF NOT EXISTS uipilot_cycles_run_idx ON uipilot_cycles (run_id, cycle);
    `
	sqlInsertCycle = `
        INSERT INTO uipilot_cycles (id, run_id, cycle, command, fingerprint, plan_text, plan_summary,
            success, macro_complete, error_code, feedback, started_at, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
    `
	sqlSelectCycles = `
        SELECT cycle, command, fingerprint, plan_text, plan_summary, success, macro_complete,
            error_code, feedback, started_at, duration_ms
        FROM uipilot_cycles
        WHERE run_id = $1
        ORDER BY cycle ASC;
    `
)

// Journal persists one row per orchestrator cycle.
type Journal struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.CycleRecorder = (*Journal)(nil)

// New creates a journal and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Journal, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Journal{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the journal table and index when missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateCycles, sqlCreateCyclesIndex} {
		if _, err := j.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}

// RecordCycle inserts rec under a fresh row id.
func (j *Journal) RecordCycle(ctx context.Context, rec schemas.CycleRecord) error {
	tag, err := j.pool.Exec(ctx, sqlInsertCycle,
		uuid.NewString(), rec.RunID, rec.Cycle, rec.Command, rec.Fingerprint,
		rec.PlanText, rec.PlanSummary,
		rec.Success, rec.MacroComplete, string(rec.ErrorCode), rec.Feedback,
		rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d of run %s: %w", rec.Cycle, rec.RunID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("unexpected rows affected recording cycle %d: %d", rec.Cycle, tag.RowsAffected())
	}
	j.log.Debug("Journaled cycle", zap.String("run_id", rec.RunID), zap.Int("cycle", rec.Cycle))
	return nil
}

// Cycles returns every journaled cycle of runID in order.
func (j *Journal) Cycles(ctx context.Context, runID string) ([]schemas.CycleRecord, error) {
	rows, err := j.pool.Query(ctx, sqlSelectCycles, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var records []schemas.CycleRecord
	for rows.Next() {
		rec := schemas.CycleRecord{RunID: runID}
		var errorCode string
		var durationMS int64

		err := rows.Scan(
			&rec.Cycle, &rec.Command, &rec.Fingerprint,
			&rec.PlanText, &rec.PlanSummary,
			&rec.Success, &rec.MacroComplete,
			&errorCode, &rec.Feedback,
			&rec.StartedAt, &durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle row: %w", err)
		}
		rec.ErrorCode = schemas.ErrorCode(errorCode)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// NopJournal discards every record. Used when the journal is disabled.
type NopJournal struct{}

var _ schemas.CycleRecorder = NopJournal{}

func (NopJournal) RecordCycle(context.Context, schemas.CycleRecord) error { return nil }
