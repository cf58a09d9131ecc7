package batch

import (
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS caps_batch_runs (
	run_id       uuid PRIMARY KEY,
	started_at   timestamptz NOT NULL,
	finished_at  timestamptz NOT NULL,
	item_count   integer NOT NULL,
	failed_count integer NOT NULL
)
`

const insertRun = `
INSERT INTO caps_batch_runs (run_id, started_at, finished_at, item_count, failed_count)
VALUES (:run_id, :started_at, :finished_at, :item_count, :failed_count)
`

type runRow struct {
	RunID       string    `db:"run_id"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	ItemCount   int       `db:"item_count"`
	FailedCount int       `db:"failed_count"`
}

// History records batch-run summaries in Postgres, separate from
// trace/pgtrace's per-event detail: one row per invocation of Run,
// grounded on the teacher's original (non-pipelined) ETL main()'s
// sqlx.Open("pgx", ...) / db.Exec call shape.
type History struct {
	db *sqlx.DB
}

func OpenHistory(connStr string) (*History, error) {
	db, err := sqlx.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) Record(report RunReport, started, finished time.Time) error {
	row := runRow{
		RunID:       report.RunID.String(),
		StartedAt:   started,
		FinishedAt:  finished,
		ItemCount:   len(report.Results),
		FailedCount: report.Failed,
	}
	_, err := h.db.NamedExec(insertRun, &row)
	return err
}
