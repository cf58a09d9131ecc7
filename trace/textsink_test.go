package trace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/ir"
	"github.com/capslang/caps/parser"
	"github.com/capslang/caps/runtime"
	"github.com/capslang/caps/sema"
)

func buildGroup(t *testing.T, src string) *ir.Group {
	t.Helper()
	var diags diag.Bag
	prog := parser.Parse(src, &diags)
	if diags.HasErrors() {
		t.Fatalf("parse errors: %v", diags.All())
	}
	sema.Check(prog, &diags)
	if diags.HasErrors() {
		t.Fatalf("sema errors: %v", diags.All())
	}
	lowered := ir.Lower(prog)
	if len(lowered.Groups) != 1 {
		t.Fatalf("want 1 group, got %d", len(lowered.Groups))
	}
	return lowered.Groups[0]
}

const countdownSrc = `
module demo;

group G1 {
  process Counter {
    states: S1, S_done;
    let count: int = 0;

    on S1 {
      do count = count + 1;
      if (count == 2) {
        -> S_done
      } else {
        -> S1
      }
    }

    on S_done @terminal {
      -> S_done
    }
  }
}
`

func TestTextSinkWritesTickAndStatusBlocks(t *testing.T) {
	g := buildGroup(t, countdownSrc)

	var buf bytes.Buffer
	sink := NewTextSink(&buf)

	rt := runtime.NewRuntime(g)
	outcome := rt.Run(sink, 1000)

	if outcome.Status != runtime.RunOK {
		t.Fatalf("want RunOK, got %s", outcome.Status)
	}

	out := buf.String()
	if !strings.Contains(out, "TICK 1") {
		t.Errorf("output missing TICK 1 block:\n%s", out)
	}
	if !strings.Contains(out, "RUNTIME_STATUS") {
		t.Errorf("output missing RUNTIME_STATUS block:\n%s", out)
	}
	if !strings.Contains(out, "Counter") {
		t.Errorf("output missing process name Counter:\n%s", out)
	}
}

func TestBufToStringFormatsValues(t *testing.T) {
	s := bufToString([]runtime.Value{runtime.IntValue(1), runtime.IntValue(2)})
	if s != "[1, 2]" {
		t.Errorf("got %q, want [1, 2]", s)
	}

	if s := bufToString(nil); s != "[]" {
		t.Errorf("got %q, want []", s)
	}
}
