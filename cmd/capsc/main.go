// Command capsc compiles and runs CAPS programs.
//
// Exit codes follow the group's run outcome: 0 on a clean finish, 1 on a
// usage or I/O error, 2 on a compile error (lex/parse/sema/pipeline-safety),
// a runtime-detected deadlock or a max-ticks exhaustion.
package main

import (
	"os"

	"github.com/capslang/caps/cmd/capsc/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
