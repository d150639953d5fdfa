// Command firmgen runs the code generation pipeline from the command line and
// inspects the local setup.
package main

import (
	"os"

	"github.com/phrazzld/firmgen/cmd/firmgen/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
