package sema

import (
	"testing"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/parser"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	var diags diag.Bag
	prog := parser.Parse(src, &diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.All())
	}
	return prog
}

func TestCheckInjectsLastErrorLocal(t *testing.T) {
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
    on __Error {
      -> __Error
    }
  }
  schedule { step P; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected sema errors: %v", diags.All())
	}
	p := prog.Groups[0].Process("P")
	if len(p.Locals) == 0 || p.Locals[0].Name != "__last_error" {
		t.Fatalf("expected __last_error to be injected as first local, got %+v", p.Locals)
	}
}

func TestCheckMissingErrorStateIsError(t *testing.T) {
	src := `
module demo;
group G {
  channel in: int, 1;
  process P {
    inputs: in: Channel<int; 1>;
    states: S1;
    on S1 {
      try_receive in -> let r;
      do let v: int = r?;
      -> S1
    }
  }
  schedule { step P; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if !diags.HasErrors() {
		t.Fatalf("expected an error for missing __Error state")
	}
}

func TestCheckChannelTypeMismatch(t *testing.T) {
	src := `
module demo;
group G {
  channel nums: int, 0;
  process P {
    outputs: nums: Channel<int; 0>;
    states: S1;
    on S1 {
      send nums <- true;
      -> S1
    }
  }
  schedule { step P; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if !diags.HasErrors() {
		t.Fatalf("expected a send type-mismatch error")
	}
}

func TestCheckRealtimeSafeRejectsBlockingSend(t *testing.T) {
	src := `
module demo;
group G @realtimesafe {
  channel nums: int, 1;
  process P {
    outputs: nums: Channel<int; 1>;
    states: S1;
    on S1 {
      send nums <- 1;
      -> S1
    }
  }
  schedule { step P; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if !diags.HasErrors() {
		t.Fatalf("expected @realtimesafe to reject blocking send")
	}
}

func TestCheckUnknownTransitionTarget(t *testing.T) {
	src := `
module demo;
group G {
  process P {
    states: S1;
    on S1 {
      -> Nope
    }
  }
  schedule { step P; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if !diags.HasErrors() {
		t.Fatalf("expected an error for undeclared transition target")
	}
}
