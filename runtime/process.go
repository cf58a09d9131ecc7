package runtime

import "github.com/capslang/caps/ir"

// ProcStatus is a process instance's scheduling status.
type ProcStatus int

const (
	Running ProcStatus = iota
	Blocked
	Finished
)

func (s ProcStatus) String() string {
	switch s {
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// ProcessInstance is one running process: its FSM position, locals, and
// (if Blocked) what it's waiting on.
//
// Mailbox replaces the original's trick of stuffing a pending rendezvous
// value into p.locals under a synthetic "chan.__recv_value" key — a
// dedicated field keeps the action executor from ever confusing a
// delivered rendezvous value with a real process-local of the same name.
type ProcessInstance struct {
	Name string
	Def  *ir.Process

	State  string
	Status ProcStatus

	Locals  map[string]Value
	Outputs map[string]Value
	Mailbox map[string]Value

	BlockedChan   string
	BlockedIsSend bool
}

func newProcessInstance(p *ir.Process) *ProcessInstance {
	pi := &ProcessInstance{
		Name:    p.Name,
		Def:     p,
		State:   p.InitialState,
		Status:  Running,
		Locals:  map[string]Value{},
		Outputs: map[string]Value{},
		Mailbox: map[string]Value{},
	}
	for _, n := range p.LocalNames {
		pi.Locals[n] = UnsetValue()
	}
	for _, n := range p.OutputNames {
		pi.Outputs[n] = UnsetValue()
	}
	pi.Locals["__last_error"] = TextValue("")
	return pi
}
