// tabula learns finite-state machines from black-box targets using
// observation tables.
package main

import (
	"os"

	"github.com/marten/tabula/cmd/tabula/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
