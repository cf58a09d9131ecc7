// Package pgtrace is a runtime.Sink that buffers events and flushes them
// to Postgres in batches, grounded on
// pipelines/stagedpipe/examples/etl/bostonFoodViolations/pipelined/etl's
// exec() helper: a pgx.Batch built from queued rows, sent under
// cenkalti/backoff exponential retry, with permanent Postgres error codes
// (syntax errors, undefined columns, fatal severity) short-circuiting the
// retry instead of spinning on them forever.
package pgtrace

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/capslang/caps/runtime"
)

const insertEventQuery = `
INSERT INTO caps_trace_events (run_id, tick, proc, kind, payload)
VALUES ($1, $2, $3, $4, $5)
`

// Sink batches trace events in memory and writes them to the
// caps_trace_events table in batches of flushEvery, rather than one
// round trip per event — the same batch-then-send shape as the ETL
// example's WriteDB, just with trace rows standing in for violation
// rows.
type Sink struct {
	pool    *pgxpool.Pool
	runID   string
	flushAt int

	buf []event
}

type event struct {
	tick    uint64
	proc    string
	kind    string
	payload any
}

// New returns a Sink that writes to pool under runID, flushing once
// flushEvery events have buffered. A flushEvery of 0 flushes every event
// immediately.
func New(pool *pgxpool.Pool, runID string, flushEvery int) *Sink {
	if flushEvery <= 0 {
		flushEvery = 1
	}
	return &Sink{pool: pool, runID: runID, flushAt: flushEvery}
}

var _ runtime.Sink = (*Sink)(nil)

func (s *Sink) push(tick uint64, proc, kind string, payload any) {
	s.buf = append(s.buf, event{tick: tick, proc: proc, kind: kind, payload: payload})
	if len(s.buf) >= s.flushAt {
		s.flush(context.Background())
	}
}

func (s *Sink) flush(ctx context.Context) {
	if len(s.buf) == 0 {
		return
	}
	batch := &pgx.Batch{}
	for _, e := range s.buf {
		j, err := json.Marshal(e.payload)
		if err != nil {
			j = []byte(`{"marshal_error":true}`)
		}
		batch.Queue(insertEventQuery, s.runID, e.tick, e.proc, e.kind, j)
	}
	s.buf = s.buf[:0]

	if err := sendBatch(ctx, s.pool, batch); err != nil {
		log.Println("pgtrace: failed to flush trace events: ", err)
	}
}

func sendBatch(ctx context.Context, pool *pgxpool.Pool, b *pgx.Batch) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 1*time.Minute)
		defer cancel()
	}

	op := func() error {
		results := pool.SendBatch(ctx, b)
		defer results.Close()

		_, err := results.Exec()
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				if pgErr.Severity == "FATAL" {
					return backoff.Permanent(err)
				}
				switch pgErr.Code {
				case "25P02", "42703", "22P04", "22021", "42601", "42P01":
					return backoff.Permanent(err)
				}
			}
			log.Println("pgtrace: batch send non-permanent error: ", err)
			return err
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

// Flush forces any buffered events out to Postgres. Call it after a run
// completes, since OnStatus's own event may still be sitting in the
// buffer below flushEvery.
func (s *Sink) Flush() {
	s.flush(context.Background())
}

func (s *Sink) OnTickBegin(tick uint64) {
	s.push(tick, "", "tick_begin", nil)
}

func (s *Sink) OnTickEnd(tick uint64) {
	s.push(tick, "", "tick_end", nil)
}

func (s *Sink) OnProcessStepBegin(tick uint64, proc, stateBefore string) {
	s.push(tick, proc, "process_step_begin", map[string]string{"state_before": stateBefore})
}

func (s *Sink) OnProcessStepEnd(tick uint64, proc, stateAfter string, status runtime.ProcStatus) {
	s.push(tick, proc, "process_step_end", map[string]string{"state_after": stateAfter, "status": status.String()})
}

func (s *Sink) OnAssign(proc, varName string, before, after runtime.Value) {
	s.push(0, proc, "assign", map[string]string{"var": varName, "before": before.String(), "after": after.String()})
}

func (s *Sink) OnSendBegin(proc, ch string, value runtime.Value, _ []runtime.Value) {
	s.push(0, proc, "send_begin", map[string]string{"channel": ch, "value": value.String()})
}

func (s *Sink) OnSendEnd(proc, ch string, _ []runtime.Value) {
	s.push(0, proc, "send_end", map[string]string{"channel": ch})
}

func (s *Sink) OnReceiveBegin(proc, ch string, _ []runtime.Value) {
	s.push(0, proc, "receive_begin", map[string]string{"channel": ch})
}

func (s *Sink) OnReceiveEnd(proc, ch string, value runtime.Value, _ []runtime.Value) {
	s.push(0, proc, "receive_end", map[string]string{"channel": ch, "value": value.String()})
}

func (s *Sink) OnTrySend(proc, ch string, value runtime.Value, success bool, _ []runtime.Value) {
	s.push(0, proc, "try_send", map[string]any{"channel": ch, "value": value.String(), "success": success})
}

func (s *Sink) OnTryReceive(proc, ch string, ok bool, value runtime.Value, _ []runtime.Value) {
	s.push(0, proc, "try_receive", map[string]any{"channel": ch, "ok": ok, "value": value.String()})
}

func (s *Sink) OnBlock(proc, kind, ch, reason string) {
	s.push(0, proc, "block", map[string]string{"op": kind, "channel": ch, "reason": reason})
}

func (s *Sink) OnTransitionSkipped(tick uint64, proc, reason string) {
	s.push(tick, proc, "transition_skipped", map[string]string{"reason": reason})
}

func (s *Sink) OnStatus(status, reason string, rt *runtime.Runtime) {
	s.push(rt.Tick, "", "runtime_status", map[string]string{"status": status, "reason": reason})
	s.Flush()
}
