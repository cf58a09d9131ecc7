package runtime

import (
	"fmt"

	"github.com/capslang/caps/ir"
)

// execResult is what executing one action did to the process, so the
// caller (stepProcessOnce) knows whether to keep running the action list
// or stop the step early.
type execResult int

const (
	execContinue execResult = iota
	execBlocked
	// execErrorRedirect means a TryUnwrapAssign hit the error arm; the
	// process must transition straight to its error state instead of
	// evaluating the on-block's normal transition.
	execErrorRedirect
)

// execAction runs one lowered action against p, mirroring exec_action's
// per-kind dispatch and blocking rules.
func (rt *Runtime) execAction(p *ProcessInstance, a ir.Action, sink Sink) execResult {
	if p.Status != Running {
		return execBlocked
	}

	switch a.Kind {
	case ir.AKAssign:
		v := rt.evalExpr(p, a.Expr)
		before := rt.lookupLocal(p, a.Dst)
		rt.assign(p, a.Dst, v)
		sink.OnAssign(p.Name, a.Dst, before, v)
		return execContinue

	case ir.AKTryUnwrapAssign:
		result := rt.evalExpr(p, a.UnwrapResult)
		if ResultIsOk(result) {
			v := ResultValue(result)
			before := rt.lookupLocal(p, a.Dst)
			rt.assign(p, a.Dst, v)
			sink.OnAssign(p.Name, a.Dst, before, v)
			return execContinue
		}
		errVal := ResultError(result)
		before := rt.lookupLocal(p, a.UnwrapLastError)
		rt.assign(p, a.UnwrapLastError, errVal)
		sink.OnAssign(p.Name, a.UnwrapLastError, before, errVal)
		return execErrorRedirect

	case ir.AKSend:
		return rt.execSend(p, a.Chan, rt.evalExpr(p, a.Expr), sink)

	case ir.AKReceive:
		return rt.execReceive(p, a.Chan, a.Dst, sink)

	case ir.AKTrySend:
		rt.execTrySend(p, a.Chan, rt.evalExpr(p, a.Expr), a.Dst, sink)
		return execContinue

	case ir.AKTryReceive:
		rt.execTryReceive(p, a.Chan, a.Dst, sink)
		return execContinue
	}

	panic(fmt.Sprintf("runtime: unhandled action kind %v", a.Kind))
}

func (rt *Runtime) lookupLocal(p *ProcessInstance, name string) Value {
	if v, ok := p.Locals[name]; ok {
		return v
	}
	if v, ok := p.Outputs[name]; ok {
		return v
	}
	return UnsetValue()
}

func (rt *Runtime) assign(p *ProcessInstance, name string, v Value) {
	if _, isOutput := p.Outputs[name]; isOutput {
		p.Outputs[name] = v
		return
	}
	p.Locals[name] = v
}

func (rt *Runtime) blockOn(p *ProcessInstance, ch string, isSend bool) {
	p.Status = Blocked
	p.BlockedChan = ch
	p.BlockedIsSend = isSend
}

// findBlockedReceiver returns the process (if any) already blocked
// receiving on ch, for rendezvous delivery.
func (rt *Runtime) findBlockedReceiver(ch string) *ProcessInstance {
	for _, name := range rt.procOrder {
		q := rt.Procs[name]
		if q.Status == Blocked && !q.BlockedIsSend && q.BlockedChan == ch {
			return q
		}
	}
	return nil
}

func (rt *Runtime) execSend(p *ProcessInstance, ch string, v Value, sink Sink) execResult {
	c := rt.Channels[ch]
	sink.OnSendBegin(p.Name, ch, v, c.bufferSnapshot())

	if c.Capacity == 0 {
		recv := rt.findBlockedReceiver(ch)
		if recv == nil {
			sink.OnBlock(p.Name, "send", ch, "unbuffered_no_receiver")
			rt.blockOn(p, ch, true)
			return execBlocked
		}
		recv.Mailbox[ch] = v
		recv.Status = Running
		recv.BlockedChan = ""
		sink.OnSendEnd(p.Name, ch, c.bufferSnapshot())
		return execContinue
	}

	if c.full() {
		sink.OnBlock(p.Name, "send", ch, "channel_full")
		rt.blockOn(p, ch, true)
		return execBlocked
	}

	c.push(v)
	sink.OnSendEnd(p.Name, ch, c.bufferSnapshot())
	return execContinue
}

func (rt *Runtime) execReceive(p *ProcessInstance, ch, dst string, sink Sink) execResult {
	c := rt.Channels[ch]
	sink.OnReceiveBegin(p.Name, ch, c.bufferSnapshot())

	if c.Capacity == 0 {
		if v, ok := p.Mailbox[ch]; ok {
			delete(p.Mailbox, ch)
			rt.assign(p, dst, v)
			sink.OnReceiveEnd(p.Name, ch, v, c.bufferSnapshot())
			return execContinue
		}
		sink.OnBlock(p.Name, "receive", ch, "unbuffered_no_value")
		rt.blockOn(p, ch, false)
		return execBlocked
	}

	v, ok := c.pop()
	if !ok {
		sink.OnBlock(p.Name, "receive", ch, "channel_empty")
		rt.blockOn(p, ch, false)
		return execBlocked
	}
	rt.assign(p, dst, v)
	sink.OnReceiveEnd(p.Name, ch, v, c.bufferSnapshot())
	return execContinue
}

func (rt *Runtime) execTrySend(p *ProcessInstance, ch string, v Value, dst string, sink Sink) {
	c := rt.Channels[ch]
	success := false

	if c.Capacity == 0 {
		if recv := rt.findBlockedReceiver(ch); recv != nil {
			recv.Mailbox[ch] = v
			recv.Status = Running
			recv.BlockedChan = ""
			success = true
		}
	} else if !c.full() {
		c.push(v)
		success = true
	}

	rt.assign(p, dst, ResultOk(BoolValue(success)))
	sink.OnTrySend(p.Name, ch, v, success, c.bufferSnapshot())
}

func (rt *Runtime) execTryReceive(p *ProcessInstance, ch, dst string, sink Sink) {
	c := rt.Channels[ch]

	if c.Capacity == 0 {
		if v, ok := p.Mailbox[ch]; ok {
			delete(p.Mailbox, ch)
			rt.assign(p, dst, ResultOk(v))
			sink.OnTryReceive(p.Name, ch, true, v, c.bufferSnapshot())
			return
		}
		rt.assign(p, dst, ResultErrText("empty"))
		sink.OnTryReceive(p.Name, ch, false, UnsetValue(), c.bufferSnapshot())
		return
	}

	v, ok := c.pop()
	if !ok {
		rt.assign(p, dst, ResultErrText("empty"))
		sink.OnTryReceive(p.Name, ch, false, UnsetValue(), c.bufferSnapshot())
		return
	}
	rt.assign(p, dst, ResultOk(v))
	sink.OnTryReceive(p.Name, ch, true, v, c.bufferSnapshot())
}
