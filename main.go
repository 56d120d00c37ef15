// cratemap indexes a Rust codebase into layered reports for coding agents.
package main

import (
	"fmt"
	"os"

	"github.com/phobologic/cratemap/internal/commands"
)

var version = "dev"

func main() {
	commands.Version = version
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
