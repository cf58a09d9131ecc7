package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/capslang/caps/goroutines/limited"
	"github.com/capslang/caps/pipelines/stagedpipe"
)

// Result is one manifest row's finished outcome, in manifest order.
type Result struct {
	Row     ManifestRow
	Outcome string // "ok", "all_processes_blocked_no_progress", "max_ticks_exceeded", or "compile_error" when Err is set
	Ticks   uint64
	Err     error
}

// RunReport summarizes a whole batch invocation.
type RunReport struct {
	RunID   uuid.UUID
	Results []Result
	Failed  int
}

// Run executes every row in rows through SM, one run ID shared across the
// whole batch. parallelism sizes both the stagedpipe.Pipelines worker
// count and the goroutines/limited pool whose jobs build each row's Item
// and hand it to RequestGroup.Submit. The source file itself is read
// inside the pipeline, by SM.Start.
func Run(ctx context.Context, rows []ManifestRow, parallelism int) (RunReport, error) {
	runID := uuid.New()

	sm, err := NewSM()
	if err != nil {
		return RunReport{}, fmt.Errorf("batch: %w", err)
	}

	pl, err := stagedpipe.New("caps-batch", parallelism, sm, stagedpipe.Ordered[Item]())
	if err != nil {
		return RunReport{}, fmt.Errorf("batch: building pipeline: %w", err)
	}
	defer pl.Close()

	readPool, err := limited.New("", parallelism)
	if err != nil {
		return RunReport{}, fmt.Errorf("batch: building read pool: %w", err)
	}
	defer readPool.Close()

	group := pl.NewRequestGroup()

	var submitErr error
	var mu sync.Mutex
	for _, row := range rows {
		row := row
		err := readPool.Submit(ctx, func(ctx context.Context) {
			item := newItem(runID, row)
			if err := group.Submit(stagedpipe.Request[Item]{Ctx: ctx, Data: item}); err != nil {
				mu.Lock()
				submitErr = fmt.Errorf("batch: submitting %s: %w", row.Path, err)
				mu.Unlock()
			}
		})
		if err != nil {
			return RunReport{}, fmt.Errorf("batch: scheduling read of %s: %w", row.Path, err)
		}
	}

	report := RunReport{RunID: runID}
	done := make(chan struct{})
	go func() {
		for req := range group.Out() {
			r := Result{Row: req.Data.Row, Ticks: req.Data.Outcome.Ticks}
			if req.Data.Err != nil {
				r.Err = req.Data.Err
				r.Outcome = "compile_error"
				report.Failed++
			} else {
				r.Outcome = req.Data.Outcome.Status.String()
				if req.Data.Outcome.Status != 0 {
					report.Failed++
				}
			}
			report.Results = append(report.Results, r)
		}
		close(done)
	}()

	readPool.Wait()
	group.Close()
	<-done

	if submitErr != nil {
		return report, submitErr
	}
	return report, nil
}
