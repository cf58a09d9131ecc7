package parser

import (
	"testing"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	var diags diag.Bag
	prog := Parse(src, &diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.All())
	}
	return prog
}

func TestParseMinimalProgram(t *testing.T) {
	src := `
module demo;

group G1 @pipeline_safe {
  channel nums: int, 0;

  process Source {
    outputs: nums: Channel<int; 0>;
    states: S1, __Error;

    on S1 {
      send nums <- 1;
      -> S1
    }
  }

  process Sink {
    inputs: nums: Channel<int; 0>;
    states: S1, __Error;
    let total: int = 0;

    on S1 {
      receive nums -> let x: int;
      do total = total + x;
      -> S1
    }
  }

  schedule {
    step Source, Sink;
    repeat;
  }
}
`
	prog := mustParse(t, src)
	if prog.Module.Name != "demo" {
		t.Fatalf("module name = %q, want demo", prog.Module.Name)
	}
	if len(prog.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(prog.Groups))
	}
	g := prog.Groups[0]
	if !ast.HasAnnotation(g.Annotations, "pipeline_safe") {
		t.Fatalf("group missing @pipeline_safe annotation")
	}
	if len(g.Channels) != 1 || g.Channels[0].Name != "nums" {
		t.Fatalf("unexpected channels: %+v", g.Channels)
	}
	if len(g.Processes) != 2 {
		t.Fatalf("got %d processes, want 2", len(g.Processes))
	}
	if g.Schedule == nil || !g.Schedule.Repeat || len(g.Schedule.Steps) != 2 {
		t.Fatalf("unexpected schedule: %+v", g.Schedule)
	}

	sink := g.Process("Sink")
	ob := sink.OnBlockFor("S1")
	if ob == nil || len(ob.Actions) != 2 {
		t.Fatalf("unexpected Sink on-block: %+v", ob)
	}
	recv, ok := ob.Actions[0].(*ast.ReceiveAction)
	if !ok || !recv.Declares || recv.Target != "x" {
		t.Fatalf("unexpected receive action: %+v", ob.Actions[0])
	}
	if _, ok := ob.Transition.(*ast.Unconditional); !ok {
		t.Fatalf("unexpected transition type: %T", ob.Transition)
	}
}

func TestParseTerminalOnBlock(t *testing.T) {
	src := `
module demo;

group G1 {
  process P {
    states: S1, S_done, __Error;

    on S1 {
      -> S_done
    }

    on S_done @terminal {
      -> S_done
    }
  }

  schedule {
    step P;
  }
}
`
	prog := mustParse(t, src)
	p := prog.Groups[0].Process("P")
	done := p.OnBlockFor("S_done")
	if done == nil || !done.Terminal {
		t.Fatalf("expected S_done on-block to be terminal, got %+v", done)
	}
	start := p.OnBlockFor("S1")
	if start == nil || start.Terminal {
		t.Fatalf("expected S1 on-block to not be terminal, got %+v", start)
	}
}

func TestParseIfElseTransitionAndTry(t *testing.T) {
	src := `
module demo;

group G1 {
  process P {
    states: S1, __Error;
    let r: Result<int, text> = 0;

    on S1 {
      do let x: int = r?;
      if (x > 0) {
        send out <- x;
        -> S1
      } else {
        -> __Error
      }
    }
  }

  schedule {
    step P;
  }
}
`
	prog := mustParse(t, src)
	p := prog.Groups[0].Process("P")
	ob := p.OnBlockFor("S1")
	doAct, ok := ob.Actions[0].(*ast.DoAction)
	if !ok {
		t.Fatalf("expected DoAction, got %T", ob.Actions[0])
	}
	if _, ok := doAct.Stmt.Value.(*ast.Try); !ok {
		t.Fatalf("expected Try expr, got %T", doAct.Stmt.Value)
	}
	ifElse, ok := ob.Transition.(*ast.IfElse)
	if !ok {
		t.Fatalf("expected IfElse transition, got %T", ob.Transition)
	}
	if ifElse.ThenTo != "S1" || ifElse.ElseTo != "__Error" {
		t.Fatalf("unexpected branch targets: then=%q else=%q", ifElse.ThenTo, ifElse.ElseTo)
	}
	bin, ok := ifElse.Cond.(*ast.Binary)
	if !ok || bin.Op != ">" {
		t.Fatalf("unexpected condition: %+v", ifElse.Cond)
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	src := `
module demo;

group G1 {
  process P {
    states: S1, __Error;
    let a: bool = 1 + 2 * 3 == 7 && true || false;

    on S1 {
      -> S1
    }
  }

  schedule {
    step P;
  }
}
`
	prog := mustParse(t, src)
	p := prog.Groups[0].Process("P")
	top, ok := p.Locals[0].Value.(*ast.Binary)
	if !ok || top.Op != "||" {
		t.Fatalf("expected top-level ||, got %+v", p.Locals[0].Value)
	}
}

func TestParseSyntaxErrorRecordsDiagnostic(t *testing.T) {
	var diags diag.Bag
	Parse("module demo", &diags) // missing ';'
	if !diags.HasErrors() {
		t.Fatalf("expected a diagnostic for missing ';'")
	}
}
