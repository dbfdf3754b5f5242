package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forgeguard",
	Short: "Contract-driven LLM build engine",
	Long: `ForgeGuard turns a set of project contracts into working source code.

A build walks the phases contract in order. Each phase is planned into a
file manifest, executed by role-scoped sub-agents (scout, coder, auditor,
fixer) in dependency tiers, then checked by the governance gate before the
phase is committed. You stay in the loop through review gates: the plan,
partial phases, and repeated failures all stop and wait for you.

Core capabilities:
- Phase planning with cost estimates you approve before any code is written
- Parallel per-file coder pipelines bounded by dependency tiers
- Batch audits with automatic fixer dispatch and carried lessons
- Governance battery: scope, boundaries, dependencies, secrets, placeholders
- Hard spend cap with warning threshold and live cost ticker`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
