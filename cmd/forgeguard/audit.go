package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/exec"
	"github.com/forgeguard/forgeguard/internal/governance"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

var auditJSON bool

var auditCmd = &cobra.Command{
	Use:   "audit [dir]",
	Short: "Run the governance battery against a workspace",
	Long: `Run the governance check battery standalone, without a build.

The battery covers scope, layer boundaries, undeclared dependencies,
hardcoded secrets, route coverage, rename detection, and placeholder
implementations. Boundary and route checks read the boundaries.md and
physics.md contracts from Forge/Contracts; without them those checks
are skipped.

Exit codes:
  0  every check passed (warnings allowed)
  1  at least one check failed
  2  the audit itself could not run

Examples:
  forgeguard audit                  # Audit the current directory
  forgeguard audit path/to/project  # Audit a specific workspace
  forgeguard audit --json | jq '.checks[] | select(.verdict=="FAIL")'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditCmd,
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	report, err := auditWorkspace(cmd.Context(), dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if auditJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			os.Exit(2)
		}
		fmt.Println(string(out))
	} else {
		printReport(report)
	}

	if report.Failed() {
		os.Exit(1)
	}
	return nil
}

// auditWorkspace builds a gate over the directory's contracts and checks
// every tracked source file.
func auditWorkspace(ctx context.Context, dir string) (governance.Report, error) {
	ws, err := workspace.New(dir)
	if err != nil {
		return governance.Report{}, err
	}

	store, _, err := loadContractStore(ctx, ws.Root(), "audit")
	if err != nil {
		return governance.Report{}, err
	}
	snapshot, err := contracts.Pin(ctx, store, "audit")
	if err != nil {
		return governance.Report{}, err
	}

	gate, err := governance.NewGate(ws, exec.NewRunner(), snapshot)
	if err != nil {
		return governance.Report{}, fmt.Errorf("building gate: %w", err)
	}

	touched, err := sourceFiles(ws.Root())
	if err != nil {
		return governance.Report{}, err
	}

	// A standalone audit has no phase manifest; treat every file as
	// in-scope so G1 does not flag the whole tree.
	manifest := make([]models.ManifestEntry, len(touched))
	for i, path := range touched {
		manifest[i] = models.ManifestEntry{Path: path, Action: models.ActionModify}
	}

	return gate.Run(ctx, manifest, touched), nil
}

// auditSkipDirs are never descended into when collecting files.
var auditSkipDirs = map[string]bool{
	".git":         true,
	".forge":       true,
	"Forge":        true,
	"node_modules": true,
	"vendor":       true,
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// sourceFiles lists workspace-relative file paths, skipping metadata and
// dependency directories.
func sourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && auditSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}
	return files, nil
}

// printReport renders the battery outcome with one colored line per check.
func printReport(report governance.Report) {
	pass := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed, color.Bold)

	for _, check := range report.Checks {
		var c *color.Color
		switch check.Verdict {
		case governance.VerdictPass:
			c = pass
		case governance.VerdictWarn:
			c = warn
		default:
			c = fail
		}
		c.Printf("%s %s: %s\n", check.Code, check.Name, check.Verdict)
		for _, f := range check.Findings {
			if f.Path != "" && f.Line > 0 {
				fmt.Printf("    %s:%d  %s\n", f.Path, f.Line, f.Message)
			} else if f.Path != "" {
				fmt.Printf("    %s  %s\n", f.Path, f.Message)
			} else {
				fmt.Printf("    %s\n", f.Message)
			}
		}
	}

	if report.Failed() {
		fail.Println("\nAudit failed")
	} else if report.Warned() {
		warn.Println("\nAudit passed with warnings")
	} else {
		pass.Println("\nAudit passed")
	}
}
