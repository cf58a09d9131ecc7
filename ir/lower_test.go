package ir

import (
	"testing"

	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/parser"
	"github.com/capslang/caps/sema"
)

func lowerSrc(t *testing.T, src string) *Program {
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
	return Lower(prog)
}

func TestLowerTryDesugarsToTryUnwrapAssign(t *testing.T) {
	src := `
module demo;
group G {
  channel in: int, 1;
  process P {
    inputs: in: Channel<int; 1>;
    states: S1, __Error;
    on S1 {
      try_receive in -> let r;
      do let v: int = r?;
      -> S1
    }
    on __Error { -> __Error }
  }
  schedule { step P; }
}
`
	prog := lowerSrc(t, src)
	st := prog.Groups[0].Process("P").State("S1")
	if len(st.Actions) != 2 {
		t.Fatalf("expected 2 lowered actions, got %d: %+v", len(st.Actions), st.Actions)
	}
	unwrap := st.Actions[1]
	if unwrap.Kind != AKTryUnwrapAssign {
		t.Fatalf("expected AKTryUnwrapAssign, got %v", unwrap.Kind)
	}
	if unwrap.Dst != "v" || unwrap.UnwrapErrorState != "__Error" || unwrap.UnwrapLastError != "__last_error" {
		t.Fatalf("unexpected unwrap action: %+v", unwrap)
	}
}

func TestLowerIfElseTransitionKeepsBranchActions(t *testing.T) {
	src := `
module demo;
group G {
  channel out: int, 1;
  process P {
    outputs: out: Channel<int; 1>;
    states: S1;
    on S1 {
      if (1 > 0) {
        send out <- 1;
        -> S1
      } else {
        -> S1
      }
    }
  }
  schedule { step P; }
}
`
	prog := lowerSrc(t, src)
	st := prog.Groups[0].Process("P").State("S1")
	if st.Transition.Kind != TKIfElse {
		t.Fatalf("expected TKIfElse, got %v", st.Transition.Kind)
	}
	if len(st.Transition.ThenActions) != 1 || st.Transition.ThenActions[0].Kind != AKSend {
		t.Fatalf("unexpected then actions: %+v", st.Transition.ThenActions)
	}
	if st.Transition.ThenState != "S1" || st.Transition.ElseState != "S1" {
		t.Fatalf("unexpected branch targets: then=%s else=%s", st.Transition.ThenState, st.Transition.ElseState)
	}
}

func TestLowerTerminalStateCarriesFlag(t *testing.T) {
	src := `
module demo;
group G {
  process P {
    states: S1, S_done;
    on S1 { -> S_done }
    on S_done @terminal { -> S_done }
  }
  schedule { step P; }
}
`
	prog := lowerSrc(t, src)
	p := prog.Groups[0].Process("P")
	if !p.State("S_done").Terminal {
		t.Fatalf("expected S_done to be lowered as terminal")
	}
	if p.State("S1").Terminal {
		t.Fatalf("expected S1 to not be terminal")
	}
}
