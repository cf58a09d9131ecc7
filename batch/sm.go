package batch

import (
	"fmt"
	"os"

	"github.com/capslang/caps/ir"
	"github.com/capslang/caps/parser"
	"github.com/capslang/caps/pipelines/stagedpipe"
	"github.com/capslang/caps/runtime"
	"github.com/capslang/caps/sema"
	"github.com/capslang/caps/trace"
)

// SM implements stagedpipe.StateMachine[Item]: compile and run one CAPS
// source file per Request, the same generic-pipeline shape the teacher's
// ETL demo used for its Start/WriteDB stages, with CAPS's
// parse/check/lower/run phases standing in for that demo's
// destring/write-to-postgres phases.
type SM struct{}

func NewSM() (*SM, error) {
	return &SM{}, nil
}

func (s *SM) Close() {}

// Start loads and parses source. Lexing has no stage of its own since
// parser.Parse already drives the lexer internally; a syntax error here
// skips straight to Finish.
func (s *SM) Start(req stagedpipe.Request[Item]) stagedpipe.Request[Item] {
	src, err := readSource(req.Data.Row)
	if err != nil {
		req.Data.Err = fmt.Errorf("reading %s: %w", req.Data.Row.Path, err)
		req.Next = s.Finish
		return req
	}
	req.Data.Source = src

	req.Data.AST = parser.Parse(src, &req.Data.Diags)
	if req.Data.Diags.HasErrors() {
		req.Data.Err = fmt.Errorf("parsing %s: %d error(s)", req.Data.Row.Path, req.Data.Diags.Len())
		req.Next = s.Finish
		return req
	}

	req.Next = s.Sema
	return req
}

func (s *SM) Sema(req stagedpipe.Request[Item]) stagedpipe.Request[Item] {
	sema.Check(req.Data.AST, &req.Data.Diags)
	if req.Data.Diags.HasErrors() {
		req.Data.Err = fmt.Errorf("checking %s: %d error(s)", req.Data.Row.Path, req.Data.Diags.Len())
		req.Next = s.Finish
		return req
	}
	req.Next = s.Lower
	return req
}

func (s *SM) Lower(req stagedpipe.Request[Item]) stagedpipe.Request[Item] {
	lowered := ir.Lower(req.Data.AST)
	if len(lowered.Groups) == 0 {
		req.Data.Err = fmt.Errorf("lowering %s: no groups", req.Data.Row.Path)
		req.Next = s.Finish
		return req
	}
	req.Data.Group = lowered.Groups[0]
	req.Next = s.Run
	return req
}

func (s *SM) Run(req stagedpipe.Request[Item]) stagedpipe.Request[Item] {
	rt := runtime.NewRuntime(req.Data.Group)

	sink, closeSink, err := traceSinkFor(req.Data.Row)
	if err != nil {
		req.Data.Err = fmt.Errorf("setting up trace sink for %s: %w", req.Data.Row.Path, err)
		req.Next = s.Finish
		return req
	}
	defer closeSink()

	req.Data.Outcome = rt.Run(sink, req.Data.Row.MaxTicks)
	req.Next = s.Finish
	return req
}

func (s *SM) Finish(req stagedpipe.Request[Item]) stagedpipe.Request[Item] {
	req.Next = nil
	return req
}

// traceSinkFor resolves a manifest row's trace setting to a concrete
// runtime.Sink. "text" writes a per-item trace file next to the source
// (<path>.trace); "otel" and "postgres" sinks are process-wide, opened
// once by cmd/capsc around the whole batch rather than per item, so they
// are not reachable through a manifest row.
func traceSinkFor(row ManifestRow) (runtime.Sink, func(), error) {
	switch row.Trace {
	case "", "none":
		return runtime.NopSink{}, func() {}, nil
	case "text":
		f, err := os.Create(row.Path + ".trace")
		if err != nil {
			return nil, nil, err
		}
		return trace.NewTextSink(f), func() { f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported per-item trace kind %q (use cmd/capsc's --trace=otel|postgres for process-wide sinks)", row.Trace)
	}
}
