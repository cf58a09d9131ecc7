package batch

import (
	"io"

	"github.com/goccy/go-json"
)

// WriteReport marshals report to w as JSON using goccy/go-json rather
// than encoding/json — the teacher's stack carries the faster drop-in
// on every hot marshal path (Request.otelStart/otelEnd's own payload
// logging uses the standard library's json instead, since those calls
// are gated behind IsRecording() and only fire when a trace is actually
// being sampled).
func WriteReport(w io.Writer, report RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
