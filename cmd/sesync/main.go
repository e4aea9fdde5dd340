// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sesync runs the SE-Sync Riemannian Staircase on synthetic pose
// graphs and prints its option defaults.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	jsonOutput bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sesync",
		Short: "Certifiably correct pose-graph synchronization",
		Long: `sesync solves SE(d) pose-graph synchronization with the Riemannian Staircase
and certifies the result through the minimum eigenvalue of S - Lambda(Y).

Options are read from --config (YAML) and SESYNC_* environment variables,
environment taking precedence over the file.

Examples:
  sesync defaults                         # Print the default options
  sesync synth --poses 100 --dim 3        # Solve a synthetic ring
  sesync synth --config opts.yaml --json  # Machine readable summary`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML options file")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(newSynthCmd())
	root.AddCommand(newDefaultsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
