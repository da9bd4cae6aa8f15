// File: cmd/wth-relay/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// wth-relay forwards object protocol connections to an upstream server.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wth-relay",
		Short: "Pass-through relay for the wth object protocol",
		Long: `wth-relay accepts protocol clients and forwards every framed
message verbatim to an upstream server, and replies back the same way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(runCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wth-relay: %s\n", err)
		os.Exit(1)
	}
}
