package batch

import (
	"strings"
	"testing"

	"github.com/capslang/caps/runtime"
)

func TestDecodeManifestFillsDefaults(t *testing.T) {
	csv := "path,max_ticks,trace\n" +
		"a.caps,500,text\n" +
		"b.caps,,\n"

	rows, err := DecodeManifest(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0].Path != "a.caps" || rows[0].MaxTicks != 500 || rows[0].Trace != "text" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Path != "b.caps" {
		t.Errorf("row 1 path = %q", rows[1].Path)
	}
	if rows[1].MaxTicks != runtime.DefaultMaxTicks {
		t.Errorf("row 1 MaxTicks = %d, want default %d", rows[1].MaxTicks, runtime.DefaultMaxTicks)
	}
	if rows[1].Trace != "none" {
		t.Errorf("row 1 Trace = %q, want none", rows[1].Trace)
	}
}

func TestDecodeManifestRejectsMalformedRow(t *testing.T) {
	csv := "path,max_ticks,trace\n" +
		"a.caps,not-a-number,none\n"

	if _, err := DecodeManifest(strings.NewReader(csv)); err == nil {
		t.Fatal("want error for malformed max_ticks column, got nil")
	}
}
