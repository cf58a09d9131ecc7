// Package trace provides runtime.Sink implementations: a plain-text
// event log plus OTEL (trace/oteltrace) and Postgres (trace/pgtrace)
// variants for production observability.
package trace

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/capslang/caps/runtime"
)

// TextSink renders the event stream as an indented, line-oriented log,
// grounded line-for-line on original_source/trace.cpp's TextTrace, with
// map iteration replaced by sorted keys so two runs of the same program
// produce byte-identical output.
type TextSink struct {
	out io.Writer
}

func NewTextSink(out io.Writer) *TextSink {
	return &TextSink{out: out}
}

var _ runtime.Sink = (*TextSink)(nil)

func bufToString(buf []runtime.Value) string {
	parts := make([]string, len(buf))
	for i, v := range buf {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s *TextSink) OnTickBegin(tick uint64) {
	fmt.Fprintf(s.out, "TICK %d\n", tick)
}

func (s *TextSink) OnTickEnd(uint64) {
	fmt.Fprint(s.out, "END_TICK\n\n")
}

func (s *TextSink) OnProcessStepBegin(_ uint64, proc, stateBefore string) {
	fmt.Fprintf(s.out, "  PROCESS_STEP %s\n", proc)
	fmt.Fprintf(s.out, "    state_before: %s\n", stateBefore)
	fmt.Fprint(s.out, "    actions:\n")
}

func (s *TextSink) OnProcessStepEnd(_ uint64, _ string, stateAfter string, status runtime.ProcStatus) {
	fmt.Fprintf(s.out, "    state_after: %s\n", stateAfter)
	fmt.Fprintf(s.out, "    status_after: %s\n\n", status)
}

func (s *TextSink) OnAssign(_, varName string, before, after runtime.Value) {
	fmt.Fprint(s.out, "      - kind: assign\n")
	fmt.Fprintf(s.out, "        var: %s\n", varName)
	fmt.Fprintf(s.out, "        before: %s\n", before)
	fmt.Fprintf(s.out, "        after: %s\n", after)
}

func (s *TextSink) OnSendBegin(_, ch string, value runtime.Value, bufferBefore []runtime.Value) {
	fmt.Fprint(s.out, "      - kind: send\n")
	fmt.Fprintf(s.out, "        channel: %s\n", ch)
	fmt.Fprintf(s.out, "        value: %s\n", value)
	fmt.Fprintf(s.out, "        channelbufferbefore: %s\n", bufToString(bufferBefore))
}

func (s *TextSink) OnSendEnd(_, _ string, bufferAfter []runtime.Value) {
	fmt.Fprintf(s.out, "        channelbufferafter: %s\n", bufToString(bufferAfter))
}

func (s *TextSink) OnReceiveBegin(_, ch string, bufferBefore []runtime.Value) {
	fmt.Fprint(s.out, "      - kind: receive\n")
	fmt.Fprintf(s.out, "        channel: %s\n", ch)
	fmt.Fprintf(s.out, "        channelbufferbefore: %s\n", bufToString(bufferBefore))
}

func (s *TextSink) OnReceiveEnd(_, _ string, value runtime.Value, bufferAfter []runtime.Value) {
	fmt.Fprintf(s.out, "        value: %s\n", value)
	fmt.Fprintf(s.out, "        channelbufferafter: %s\n", bufToString(bufferAfter))
}

func (s *TextSink) OnTrySend(_, ch string, value runtime.Value, success bool, bufferAfter []runtime.Value) {
	fmt.Fprint(s.out, "      - kind: try_send\n")
	fmt.Fprintf(s.out, "        channel: %s\n", ch)
	fmt.Fprintf(s.out, "        value: %s\n", value)
	fmt.Fprintf(s.out, "        success: %t\n", success)
	fmt.Fprintf(s.out, "        channelbufferafter: %s\n", bufToString(bufferAfter))
}

func (s *TextSink) OnTryReceive(_, ch string, ok bool, value runtime.Value, bufferAfter []runtime.Value) {
	fmt.Fprint(s.out, "      - kind: try_receive\n")
	fmt.Fprintf(s.out, "        channel: %s\n", ch)
	fmt.Fprintf(s.out, "        ok: %t\n", ok)
	fmt.Fprintf(s.out, "        value: %s\n", value)
	fmt.Fprintf(s.out, "        channelbufferafter: %s\n", bufToString(bufferAfter))
}

func (s *TextSink) OnBlock(_, kind, ch, reason string) {
	fmt.Fprint(s.out, "        blocked: true\n")
	fmt.Fprintf(s.out, "        op: %s\n", kind)
	fmt.Fprintf(s.out, "        channel: %s\n", ch)
	fmt.Fprintf(s.out, "        reason: %s\n", reason)
}

func (s *TextSink) OnTransitionSkipped(_ uint64, _, reason string) {
	fmt.Fprint(s.out, "    transition:\n")
	fmt.Fprint(s.out, "      kind: skipped\n")
	fmt.Fprintf(s.out, "      reason: %s\n", reason)
}

func (s *TextSink) OnStatus(status, reason string, rt *runtime.Runtime) {
	fmt.Fprint(s.out, "RUNTIME_STATUS\n")
	fmt.Fprintf(s.out, "  status: %s\n", status)
	fmt.Fprintf(s.out, "  reason: %s\n", reason)
	fmt.Fprint(s.out, "  processes:\n")
	for _, name := range rt.ProcOrder() {
		p := rt.Procs[name]
		fmt.Fprintf(s.out, "    %s: state=%s status=%s\n", name, p.State, p.Status)
	}
	fmt.Fprint(s.out, "  channels:\n")
	names := make([]string, 0, len(rt.Channels))
	for name := range rt.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "    %s: buffer=%s\n", name, bufToString(rt.Channels[name].Buffer))
	}
	fmt.Fprint(s.out, "END_STATUS\n")
}
