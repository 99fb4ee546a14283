// Command ynctl is a terminal client for the YN reward ledger. It keeps the
// session and the last confirmed Account in a local cache file.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(GetExitCode(err))
	}
}
