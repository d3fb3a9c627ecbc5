// Command ledgerctl manages accounts and runs transfers from the shell.
package main

import (
	"fmt"
	"os"

	"ledgertx/internal/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
