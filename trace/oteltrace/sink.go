// Package oteltrace is a runtime.Sink that turns each tick and process
// step into an OTEL span, grounded on
// pipelines/stagedpipe/stagedpipe.go's Request.otelStart/otelEnd pattern
// (one span per unit of work, events recorded into it rather than a
// side channel, span.Status(codes.Error, ...) set only on failure).
package oteltrace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"github.com/gostdlib/internals/otel/span"

	"github.com/capslang/caps/runtime"
)

// Sink opens one span per tick and one child span per process step,
// recording an Event per action instead of a child span per action —
// actions are too fine-grained to be useful spans on their own, but are
// exactly the granularity stagedpipe's Request.Event records stage
// progress at.
type Sink struct {
	ctx context.Context

	groupName string

	tickSpan  span.Span
	tickCtx   context.Context
	stepSpans map[string]stepSpan
}

type stepSpan struct {
	ctx context.Context
	sp  span.Span
}

var _ runtime.Sink = (*Sink)(nil)

// New returns a Sink that opens spans under ctx, named after groupName
// (the CAPS group being executed).
func New(ctx context.Context, groupName string) *Sink {
	return &Sink{
		ctx:       ctx,
		groupName: groupName,
		stepSpans: map[string]stepSpan{},
	}
}

func (s *Sink) OnTickBegin(tick uint64) {
	s.tickCtx, s.tickSpan = span.New(s.ctx, fmt.Sprintf("caps.Group(%s).Tick(%d)", s.groupName, tick))
}

func (s *Sink) OnTickEnd(uint64) {
	if s.tickSpan.Span == nil {
		return
	}
	s.tickSpan.End()
}

func (s *Sink) OnProcessStepBegin(_ uint64, proc, stateBefore string) {
	ctx := s.ctx
	if s.tickCtx != nil {
		ctx = s.tickCtx
	}
	ctx, sp := span.New(ctx, fmt.Sprintf("caps.Process(%s)", proc))
	if sp.Span != nil && sp.Span.IsRecording() {
		sp.Event("state_before", "state", stateBefore)
	}
	s.stepSpans[proc] = stepSpan{ctx: ctx, sp: sp}
}

func (s *Sink) OnProcessStepEnd(_ uint64, proc, stateAfter string, status runtime.ProcStatus) {
	ss, ok := s.stepSpans[proc]
	if !ok || ss.sp.Span == nil {
		return
	}
	if ss.sp.Span.IsRecording() {
		ss.sp.Event("state_after", "state", stateAfter, "status", status.String())
	}
	if status == runtime.Blocked {
		ss.sp.Status(codes.Error, "blocked")
	}
	ss.sp.End()
	delete(s.stepSpans, proc)
}

func (s *Sink) span(proc string) span.Span {
	return s.stepSpans[proc].sp
}

func (s *Sink) OnAssign(proc, varName string, before, after runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("assign", "var", varName, "before", before.String(), "after", after.String())
}

func (s *Sink) OnSendBegin(proc, ch string, value runtime.Value, _ []runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("send_begin", "channel", ch, "value", value.String())
}

func (s *Sink) OnSendEnd(proc, ch string, _ []runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("send_end", "channel", ch)
}

func (s *Sink) OnReceiveBegin(proc, ch string, _ []runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("receive_begin", "channel", ch)
}

func (s *Sink) OnReceiveEnd(proc, ch string, value runtime.Value, _ []runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("receive_end", "channel", ch, "value", value.String())
}

func (s *Sink) OnTrySend(proc, ch string, value runtime.Value, success bool, _ []runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("try_send", "channel", ch, "value", value.String(), "success", success)
}

func (s *Sink) OnTryReceive(proc, ch string, ok bool, value runtime.Value, _ []runtime.Value) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("try_receive", "channel", ch, "ok", ok, "value", value.String())
}

func (s *Sink) OnBlock(proc, kind, ch, reason string) {
	sp := s.span(proc)
	if sp.Span == nil {
		return
	}
	if sp.Span.IsRecording() {
		sp.Event("block", "op", kind, "channel", ch, "reason", reason)
	}
	sp.Status(codes.Error, reason)
}

func (s *Sink) OnTransitionSkipped(_ uint64, proc, reason string) {
	sp := s.span(proc)
	if sp.Span == nil || !sp.Span.IsRecording() {
		return
	}
	sp.Event("transition_skipped", "reason", reason)
}

func (s *Sink) OnStatus(status, reason string, _ *runtime.Runtime) {
	if s.tickSpan.Span == nil || !s.tickSpan.Span.IsRecording() {
		return
	}
	s.tickSpan.Event("runtime_status", "status", status, "reason", reason)
	if status != runtime.RunOK.TraceStatus() {
		s.tickSpan.Status(codes.Error, reason)
	}
}
