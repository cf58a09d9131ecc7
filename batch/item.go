package batch

import (
	"os"

	"github.com/google/uuid"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/ir"
	"github.com/capslang/caps/runtime"
)

// Item is the payload carried through a stagedpipe.Request as it moves
// from raw source to a finished run outcome. One Item corresponds to one
// ManifestRow.
type Item struct {
	RunID uuid.UUID
	Row   ManifestRow

	Source string
	Diags  diag.Bag

	AST   *ast.Program
	Group *ir.Group

	Outcome runtime.RunOutcome

	// Err is set by whichever stage first fails; that stage also points
	// Next straight at Finish, so no later stage ever runs against a
	// half-built Item.
	Err error
}

func newItem(runID uuid.UUID, row ManifestRow) Item {
	return Item{RunID: runID, Row: row}
}

func readSource(row ManifestRow) (string, error) {
	b, err := os.ReadFile(row.Path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
