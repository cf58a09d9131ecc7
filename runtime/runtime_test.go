package runtime

import (
	"testing"

	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/ir"
	"github.com/capslang/caps/parser"
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

func TestRunRendezvousProducerConsumerFinishes(t *testing.T) {
	src := `
module demo;

group G1 @pipeline_safe {
  channel nums: int, 0;

  process Source {
    outputs: nums: Channel<int; 0>;
    states: S1, S_done;
    let count: int = 0;

    on S1 {
      send nums <- count;
      do count = count + 1;
      if (count == 3) {
        -> S_done
      } else {
        -> S1
      }
    }

    on S_done @terminal {
      -> S_done
    }
  }

  process Sink {
    inputs: nums: Channel<int; 0>;
    states: S1, S_done;
    let total: int = 0;
    let seen: int = 0;

    on S1 {
      receive nums -> let x: int;
      do total = total + x;
      do seen = seen + 1;
      if (seen == 3) {
        -> S_done
      } else {
        -> S1
      }
    }

    on S_done @terminal {
      -> S_done
    }
  }

  schedule {
    step Source, Sink;
    repeat;
  }
}
`
	g := buildGroup(t, src)
	rt := NewRuntime(g)
	outcome := rt.Run(NopSink{}, 0)

	if outcome.Status != RunOK {
		t.Fatalf("status = %v, want RunOK", outcome.Status)
	}
	sink := rt.Procs["Sink"]
	if sink.Status != Finished {
		t.Fatalf("Sink status = %v, want Finished", sink.Status)
	}
	if got := sink.Locals["total"]; got.I != 0+1+2 {
		t.Fatalf("Sink total = %v, want 3", got)
	}
}

func TestRunDeadlockWhenReceiverHasNoSender(t *testing.T) {
	src := `
module demo;

group G1 {
  channel nums: int, 0;

  process Sink {
    inputs: nums: Channel<int; 0>;
    states: S1;
    let total: int = 0;

    on S1 {
      receive nums -> let x: int;
      do total = total + x;
      -> S1
    }
  }

  schedule {
    step Sink;
    repeat;
  }
}
`
	g := buildGroup(t, src)
	rt := NewRuntime(g)
	outcome := rt.Run(NopSink{}, 0)

	if outcome.Status != RunDeadlock {
		t.Fatalf("status = %v, want RunDeadlock", outcome.Status)
	}
	if rt.Procs["Sink"].Status != Blocked {
		t.Fatalf("Sink status = %v, want Blocked", rt.Procs["Sink"].Status)
	}
}

func TestRunMaxTicksExceededOnUnboundedLoop(t *testing.T) {
	src := `
module demo;

group G1 {
  process Loop {
    states: S1;
    let n: int = 0;

    on S1 {
      do n = n + 1;
      -> S1
    }
  }

  schedule {
    step Loop;
    repeat;
  }
}
`
	g := buildGroup(t, src)
	rt := NewRuntime(g)
	outcome := rt.Run(NopSink{}, 10)

	if outcome.Status != RunMaxTicksExceeded {
		t.Fatalf("status = %v, want RunMaxTicksExceeded", outcome.Status)
	}
	if outcome.Ticks != 10 {
		t.Fatalf("ticks = %d, want 10", outcome.Ticks)
	}
}

func TestRunTryUnwrapAssignRedirectsToErrorState(t *testing.T) {
	src := `
module demo;

group G1 {
  channel in: int, 1;

  process P {
    inputs: in: Channel<int; 1>;
    states: S1, S_ok, __Error;
    let x: int = 0;

    on S1 {
      try_receive in -> let r;
      do x = r?;
      -> S_ok
    }

    on S_ok @terminal {
      -> S_ok
    }

    on __Error @terminal {
      -> __Error
    }
  }

  schedule {
    step P;
  }
}
`
	g := buildGroup(t, src)
	rt := NewRuntime(g)
	p := rt.Procs["P"]

	outcome := rt.Run(NopSink{}, 0)

	if outcome.Status != RunOK {
		t.Fatalf("status = %v, want RunOK", outcome.Status)
	}
	if p.State != "__Error" {
		t.Fatalf("state = %q, want __Error", p.State)
	}
	if p.Status != Finished {
		t.Fatalf("status = %v, want Finished", p.Status)
	}
	if got := p.Locals["__last_error"]; got.S != "empty" {
		t.Fatalf("__last_error = %q, want empty", got.S)
	}
}

func TestRunTryUnwrapAssignContinuesOnOk(t *testing.T) {
	src := `
module demo;

group G1 {
  channel in: int, 1;

  process Source {
    outputs: in: Channel<int; 1>;
    states: S1, S_done;

    on S1 {
      send in <- 42;
      -> S_done
    }

    on S_done @terminal {
      -> S_done
    }
  }

  process P {
    inputs: in: Channel<int; 1>;
    states: S1, S_ok, __Error;
    let x: int = 0;

    on S1 {
      try_receive in -> let r;
      do x = r?;
      -> S_ok
    }

    on S_ok @terminal {
      -> S_ok
    }

    on __Error @terminal {
      -> __Error
    }
  }

  schedule {
    step Source, P;
  }
}
`
	g := buildGroup(t, src)
	rt := NewRuntime(g)
	p := rt.Procs["P"]

	outcome := rt.Run(NopSink{}, 0)

	if outcome.Status != RunOK {
		t.Fatalf("status = %v, want RunOK", outcome.Status)
	}
	if got := p.Locals["x"]; got.I != 42 {
		t.Fatalf("x = %v, want 42", got)
	}
	if p.State != "S_ok" {
		t.Fatalf("state = %q, want S_ok", p.State)
	}
}
