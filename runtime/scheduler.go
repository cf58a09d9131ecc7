package runtime

import "github.com/capslang/caps/ir"

// RunStatus is how a Run call ended.
type RunStatus int

const (
	RunOK RunStatus = iota
	RunDeadlock
	RunMaxTicksExceeded
)

func (s RunStatus) String() string {
	switch s {
	case RunOK:
		return "ok"
	case RunDeadlock:
		return "all_processes_blocked_no_progress"
	case RunMaxTicksExceeded:
		return "max_ticks_exceeded"
	default:
		return "unknown"
	}
}

// TraceStatus returns the status label the trace sink contract expects:
// "Completed" or "Deadlock". Reason carries the detail String() folds in
// here (all_processes_blocked_no_progress, max_ticks_exceeded).
func (s RunStatus) TraceStatus() string {
	switch s {
	case RunOK:
		return "Completed"
	default:
		return "Deadlock"
	}
}

// Reason returns the trace sink contract's reason string for a terminal
// status: empty for Completed, otherwise the same text String() returns.
func (s RunStatus) Reason() string {
	if s == RunOK {
		return ""
	}
	return s.String()
}

// RunOutcome is the terminal result of a Run call, enough for a caller to
// decide an exit code and print a summary.
type RunOutcome struct {
	Status RunStatus
	Ticks  uint64
}

// stepProcessOnce advances p by exactly one FSM step: run the current
// state's actions in order, then evaluate its transition. Mirrors
// step_process_once, with the one addition of execErrorRedirect for
// TryUnwrapAssign, a behavior exec.cpp never implements because the
// original has no postfix-? operator.
//
// A Blocked process is retried from the top of its current state's action
// list every tick it's scheduled, rather than resuming mid-list — this
// port carries no per-process program counter. Actions preceding the one
// that blocks must therefore be safe to re-run, which holds for every
// action kind here (assign/try_send/try_receive are idempotent given the
// same inputs, and a blocking send/receive either fully commits or fully
// blocks with no partial effect).
func (rt *Runtime) stepProcessOnce(p *ProcessInstance, sink Sink) {
	if p.Status == Finished {
		return
	}
	p.Status = Running

	stateBefore := p.State
	sink.OnProcessStepBegin(rt.Tick, p.Name, stateBefore)

	st := p.Def.State(p.State)

	for _, a := range st.Actions {
		switch rt.execAction(p, a, sink) {
		case execBlocked:
			sink.OnProcessStepEnd(rt.Tick, p.Name, p.State, p.Status)
			return
		case execErrorRedirect:
			rt.applyTransitionTo(p, errorRedirectState(st.Actions, a), sink)
			sink.OnProcessStepEnd(rt.Tick, p.Name, p.State, p.Status)
			return
		}
	}

	switch st.Transition.Kind {
	case ir.TKGoto:
		rt.applyTransitionTo(p, st.Transition.ToState, sink)

	case ir.TKIfElse:
		cond := rt.evalExpr(p, st.Transition.Cond)
		branchActions, branchTarget := st.Transition.ElseActions, st.Transition.ElseState
		if IsTruthy(cond) {
			branchActions, branchTarget = st.Transition.ThenActions, st.Transition.ThenState
		}
		for _, a := range branchActions {
			switch rt.execAction(p, a, sink) {
			case execBlocked:
				sink.OnTransitionSkipped(rt.Tick, p.Name, "branch_action_blocked")
				sink.OnProcessStepEnd(rt.Tick, p.Name, p.State, p.Status)
				return
			case execErrorRedirect:
				rt.applyTransitionTo(p, errorRedirectState(branchActions, a), sink)
				sink.OnProcessStepEnd(rt.Tick, p.Name, p.State, p.Status)
				return
			}
		}
		rt.applyTransitionTo(p, branchTarget, sink)
	}

	sink.OnProcessStepEnd(rt.Tick, p.Name, p.State, p.Status)
}

// errorRedirectState finds which action in actions produced the redirect,
// by identity of the one TryUnwrapAssign kind present; callers only ever
// pass the action list a came from, so a linear scan is fine.
func errorRedirectState(actions []ir.Action, a ir.Action) string {
	for _, c := range actions {
		if c.Kind == ir.AKTryUnwrapAssign && c.Dst == a.Dst {
			return c.UnwrapErrorState
		}
	}
	return a.UnwrapErrorState
}

func (rt *Runtime) applyTransitionTo(p *ProcessInstance, nextState string, sink Sink) {
	p.State = nextState
	if st := p.Def.State(nextState); st != nil && st.Terminal {
		p.Status = Finished
	}
}

// RunTick advances every non-Finished process scheduled this tick by one
// step, in schedule order, and reports whether any of them made observable
// progress (a state change, a status change, or an unblock) — a Blocked
// process that comes back from its retry exactly as it went in did
// nothing this tick, which is what deadlock detection watches for.
func (rt *Runtime) RunTick(sink Sink) (progressed bool) {
	sink.OnTickBegin(rt.Tick)
	defer sink.OnTickEnd(rt.Tick)

	for _, name := range rt.Group.Schedule.Steps {
		p, ok := rt.Procs[name]
		if !ok || p.Status == Finished {
			continue
		}
		beforeState, beforeStatus, beforeChan := p.State, p.Status, p.BlockedChan
		rt.stepProcessOnce(p, sink)
		if p.State != beforeState || p.Status != beforeStatus || p.BlockedChan != beforeChan {
			progressed = true
		}
	}
	return progressed
}

// Run drives the tick loop to completion: every process Finished, a
// deadlock (no process makes observable progress during a tick while some
// remain Blocked), or maxTicks reached. Grounded on run_group's loop.
func (rt *Runtime) Run(sink Sink, maxTicks uint64) RunOutcome {
	if maxTicks == 0 {
		maxTicks = DefaultMaxTicks
	}

	for {
		if rt.AllFinished() {
			sink.OnStatus(RunOK.TraceStatus(), RunOK.Reason(), rt)
			return RunOutcome{Status: RunOK, Ticks: rt.Tick}
		}
		if rt.Tick >= maxTicks {
			sink.OnStatus(RunMaxTicksExceeded.TraceStatus(), RunMaxTicksExceeded.Reason(), rt)
			return RunOutcome{Status: RunMaxTicksExceeded, Ticks: rt.Tick}
		}

		progressed := rt.RunTick(sink)
		rt.Tick++

		if !progressed && rt.AnyBlocked() && !rt.AllFinished() {
			sink.OnStatus(RunDeadlock.TraceStatus(), RunDeadlock.Reason(), rt)
			return RunOutcome{Status: RunDeadlock, Ticks: rt.Tick}
		}
	}
}
