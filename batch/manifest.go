package batch

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/capslang/caps/runtime"
)

// ManifestRow is one line of a batch manifest: a CAPS source file to run
// and the knobs that would otherwise be capsc flags, so a batch job can
// mix programs that need different trace/tick settings in one run.
// Grounded on the teacher's ETL example's csvutil.Row, with CAPS's own
// fields substituted for the violation-record columns.
type ManifestRow struct {
	Path     string `csv:"path"`
	MaxTicks uint64 `csv:"max_ticks"`
	Trace    string `csv:"trace"`
}

// DecodeManifest reads a CSV manifest, one ManifestRow per record, in the
// same csvutil.NewDecoder/dec.Decode loop the teacher's ETL example uses
// for its violations file, stopping at the first malformed row rather
// than skipping it — a batch run is a deliberate, reviewed job list, not
// best-effort ingestion of external data.
func DecodeManifest(r io.Reader) ([]ManifestRow, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("batch: opening manifest: %w", err)
	}

	var rows []ManifestRow
	for {
		var row ManifestRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("batch: decoding manifest row %d: %w", len(rows)+1, err)
		}
		if row.MaxTicks == 0 {
			row.MaxTicks = runtime.DefaultMaxTicks
		}
		if row.Trace == "" {
			row.Trace = "none"
		}
		rows = append(rows, row)
	}
	return rows, nil
}
