package cmd

import (
	"fmt"
	"os"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/internal/config"
	"github.com/capslang/caps/ir"
	"github.com/capslang/caps/parser"
	"github.com/capslang/caps/runtime"
	"github.com/capslang/caps/sema"
	"github.com/capslang/caps/trace"
)

// runFile drives one CAPS source file through parse, sema, lower, and
// (unless the config says otherwise) execution, returning the process
// exit code spec.md's run contract defines: 0 ok, 1 usage or I/O error,
// 2 compile error, runtime deadlock or max-ticks.
func runFile(path string, cfg config.Config) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 1, fmt.Errorf("reading %s: %w", path, err)
	}

	var diags diag.Bag
	prog := parser.Parse(string(src), &diags)

	if cfg.DumpAST {
		dumpAST(os.Stdout, prog)
	}

	sema.Check(prog, &diags)

	var topo *sema.Topology
	for _, g := range prog.Groups {
		if hasPipelineSafe(g) {
			topo = sema.CheckPipelineSafe(g, &diags)
		}
	}

	if diags.HasErrors() {
		for _, d := range diags.All() {
			fmt.Fprintln(os.Stderr, d.String())
		}
		return 2, fmt.Errorf("%s: %d compile error(s)", path, diags.Len())
	}

	if cfg.DumpTopo != "" && topo != nil {
		dumpTopology(os.Stdout, topo, cfg.DumpTopo)
	}

	if cfg.CheckOnly {
		return 0, nil
	}

	lowered := ir.Lower(prog)
	if len(lowered.Groups) == 0 {
		return 1, fmt.Errorf("%s: no group declared", path)
	}

	sink, closeSink, err := sinkFor(cfg)
	if err != nil {
		return 1, err
	}
	defer closeSink()

	rt := runtime.NewRuntime(lowered.Groups[0])
	outcome := rt.Run(sink, cfg.MaxTicks)

	switch outcome.Status {
	case runtime.RunOK:
		return 0, nil
	case runtime.RunDeadlock, runtime.RunMaxTicksExceeded:
		return 2, fmt.Errorf("%s: %s after %d tick(s)", path, outcome.Status, outcome.Ticks)
	default:
		return 1, fmt.Errorf("%s: unknown run status", path)
	}
}

func hasPipelineSafe(g *ast.GroupDecl) bool {
	return ast.HasAnnotation(g.Annotations, "pipeline_safe")
}

func sinkFor(cfg config.Config) (runtime.Sink, func(), error) {
	switch cfg.Trace {
	case "", "none":
		return runtime.NopSink{}, func() {}, nil
	case "text":
		return trace.NewTextSink(os.Stdout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("--trace=%s is not wired into capsc yet (otel/postgres sinks need process lifecycle hooks beyond a single run)", cfg.Trace)
	}
}
