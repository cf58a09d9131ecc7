package cmd

import (
	"fmt"
	"io"

	"github.com/kylelemons/godebug/pretty"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/sema"
)

// dumpAST prints prog with kylelemons/godebug/pretty, the same library
// sema/pipeline_test.go uses for struct diffs — here used for its other
// natural job, printing a nested struct tree legibly, instead of
// encoding/json's flatter and noisier default struct dump.
func dumpAST(w io.Writer, prog *ast.Program) {
	fmt.Fprintln(w, pretty.Sprint(prog))
}

// dumpTopology renders a @pipeline_safe group's channel graph as either
// Graphviz dot or a plain edge list.
func dumpTopology(w io.Writer, topo *sema.Topology, format string) {
	switch format {
	case "dot":
		fmt.Fprintf(w, "digraph %s {\n", topo.GroupName)
		for _, e := range topo.Edges {
			fmt.Fprintf(w, "  %q -> %q [label=%q];\n", e.From, e.To, e.Channel)
		}
		fmt.Fprintln(w, "}")
	default:
		for _, e := range topo.Edges {
			fmt.Fprintf(w, "%s -[%s]-> %s\n", e.From, e.Channel, e.To)
		}
		fmt.Fprintf(w, "order: %v\n", topo.Order)
	}
}
