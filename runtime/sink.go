package runtime

// Sink receives scheduler events in strict emission order: within a tick,
// OnProcessStepBegin/End bracket each scheduled process in schedule order,
// and within a step, OnAssign/OnSend*/OnReceive*/OnTry*/OnBlock/
// OnTransitionSkipped occur in action-list order. Determinism (the
// ordering guarantee of (tick, schedule_index, action_index)) is the
// scheduler's responsibility; a Sink only ever observes that fixed order,
// never imposes it. The interface lives in this package (not trace, which
// depends on it) so concrete sinks — trace.TextSink, trace/oteltrace,
// trace/pgtrace — can all implement it without an import cycle.
type Sink interface {
	OnTickBegin(tick uint64)
	OnTickEnd(tick uint64)

	OnProcessStepBegin(tick uint64, proc, stateBefore string)
	OnProcessStepEnd(tick uint64, proc, stateAfter string, status ProcStatus)

	OnAssign(proc, varName string, before, after Value)

	OnSendBegin(proc, ch string, value Value, bufferBefore []Value)
	OnSendEnd(proc, ch string, bufferAfter []Value)

	OnReceiveBegin(proc, ch string, bufferBefore []Value)
	OnReceiveEnd(proc, ch string, value Value, bufferAfter []Value)

	OnTrySend(proc, ch string, value Value, success bool, bufferAfter []Value)
	OnTryReceive(proc, ch string, ok bool, value Value, bufferAfter []Value)

	OnBlock(proc, kind, ch, reason string)
	OnTransitionSkipped(tick uint64, proc, reason string)

	OnStatus(status, reason string, rt *Runtime)
}

// NopSink implements Sink with no-ops, for callers that only want the run
// result and not the event stream (e.g. `capsc --trace=none`).
type NopSink struct{}

func (NopSink) OnTickBegin(uint64) {}
func (NopSink) OnTickEnd(uint64)   {}

func (NopSink) OnProcessStepBegin(uint64, string, string)               {}
func (NopSink) OnProcessStepEnd(uint64, string, string, ProcStatus)     {}
func (NopSink) OnAssign(string, string, Value, Value)                   {}
func (NopSink) OnSendBegin(string, string, Value, []Value)              {}
func (NopSink) OnSendEnd(string, string, []Value)                       {}
func (NopSink) OnReceiveBegin(string, string, []Value)                  {}
func (NopSink) OnReceiveEnd(string, string, Value, []Value)             {}
func (NopSink) OnTrySend(string, string, Value, bool, []Value)          {}
func (NopSink) OnTryReceive(string, string, bool, Value, []Value)       {}
func (NopSink) OnBlock(string, string, string, string)                  {}
func (NopSink) OnTransitionSkipped(uint64, string, string)              {}
func (NopSink) OnStatus(string, string, *Runtime)                       {}

var _ Sink = NopSink{}
