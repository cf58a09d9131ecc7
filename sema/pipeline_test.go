package sema

import (
	"testing"

	"github.com/capslang/caps/diag"
	"github.com/kylelemons/godebug/pretty"
)

func TestPipelineSafeAcceptsValidDAG(t *testing.T) {
	src := `
module demo;
group G @pipeline_safe {
  channel a: int, 0;
  channel b: int, 0;

  process Src {
    outputs: a: Channel<int; 0>;
    states: S1;
    on S1 { send a <- 1; -> S1 }
  }
  process Mid {
    inputs: a: Channel<int; 0>;
    outputs: b: Channel<int; 0>;
    states: S1;
    on S1 {
      receive a -> let x: int;
      send b <- x;
      -> S1
    }
  }
  process Dst {
    inputs: b: Channel<int; 0>;
    states: S1;
    on S1 { receive b -> let y: int; -> S1 }
  }

  schedule { step Src, Mid, Dst; repeat; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
}

func TestPipelineSafeRejectsMultiWriter(t *testing.T) {
	src := `
module demo;
group G @pipeline_safe {
  channel a: int, 0;

  process Src1 {
    outputs: a: Channel<int; 0>;
    states: S1;
    on S1 { send a <- 1; -> S1 }
  }
  process Src2 {
    outputs: a: Channel<int; 0>;
    states: S1;
    on S1 { send a <- 2; -> S1 }
  }
  process Dst {
    inputs: a: Channel<int; 0>;
    states: S1;
    on S1 { receive a -> let y: int; -> S1 }
  }

  schedule { step Src1, Src2, Dst; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if !diags.HasErrors() {
		t.Fatalf("expected an error for a channel with two writers")
	}
}

func TestPipelineSafeRejectsScheduleOrderViolation(t *testing.T) {
	src := `
module demo;
group G @pipeline_safe {
  channel a: int, 0;

  process Src {
    outputs: a: Channel<int; 0>;
    states: S1;
    on S1 { send a <- 1; -> S1 }
  }
  process Dst {
    inputs: a: Channel<int; 0>;
    states: S1;
    on S1 { receive a -> let y: int; -> S1 }
  }

  schedule { step Dst, Src; }
}
`
	prog := parseOK(t, src)
	var diags diag.Bag
	Check(prog, &diags)
	if !diags.HasErrors() {
		t.Fatalf("expected a schedule-order violation error")
	}
}

func TestCheckPipelineSafeReturnsTopology(t *testing.T) {
	src := `
module demo;
group G @pipeline_safe {
  channel a: int, 0;

  process Src {
    outputs: a: Channel<int; 0>;
    states: S1;
    on S1 { send a <- 1; -> S1 }
  }
  process Dst {
    inputs: a: Channel<int; 0>;
    states: S1;
    on S1 { receive a -> let y: int; -> S1 }
  }

  schedule { step Src, Dst; }
}
`
	prog := parseOK(t, src)
	topo := CheckPipelineSafe(prog.Groups[0], &diag.Bag{})

	want := &Topology{
		GroupName: "G",
		Edges:     []Edge{{Channel: "a", From: "Src", To: "Dst"}},
		Order:     []string{"Src", "Dst"},
	}
	if diff := pretty.Compare(want, topo); diff != "" {
		t.Fatalf("topology mismatch (-want +got):\n%s", diff)
	}
}
