package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/forgeguard/forgeguard/internal/workspace"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Tail build activity in a workspace",
	Long: `Watch a workspace's .forge directory and print build activity as it
happens: handoff records, handoff results, manifest caches, and progress
snapshots. Useful alongside a headless run or from a second terminal.

Press Ctrl+C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	forgeDir := filepath.Join(dir, workspace.ForgeDirName)
	if _, err := os.Stat(forgeDir); err != nil {
		return fmt.Errorf("no %s directory in %s; has a build run here?", workspace.ForgeDirName, dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// fsnotify does not recurse; watch .forge and its handoffs directory.
	if err := watcher.Add(forgeDir); err != nil {
		return fmt.Errorf("watching %s: %w", forgeDir, err)
	}
	handoffs := filepath.Join(forgeDir, "handoffs")
	if _, err := os.Stat(handoffs); err == nil {
		if err := watcher.Add(handoffs); err != nil {
			return fmt.Errorf("watching %s: %w", handoffs, err)
		}
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", forgeDir)

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New handoffs directory appearing mid-run joins the watch.
			if event.Op.Has(fsnotify.Create) && event.Name == handoffs {
				_ = watcher.Add(handoffs)
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				printForgeChange(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

// printForgeChange formats one changed .forge file for the console.
func printForgeChange(path string) {
	stamp := time.Now().Format("15:04:05")
	name := filepath.Base(path)
	dim := color.New(color.Faint)

	switch {
	case name == "progress.json":
		snapshot, err := readProgress(path)
		if err != nil {
			return
		}
		dim.Printf("%s ", stamp)
		color.New(color.FgCyan).Printf("progress: %s\n", snapshot)
	case strings.HasSuffix(name, "_result.json"):
		dim.Printf("%s ", stamp)
		color.New(color.FgGreen).Printf("handoff result: %s\n", strings.TrimSuffix(name, "_result.json"))
	case strings.HasSuffix(name, ".json") && filepath.Base(filepath.Dir(path)) == "handoffs":
		dim.Printf("%s ", stamp)
		color.New(color.FgYellow).Printf("handoff started: %s\n", strings.TrimSuffix(name, ".json"))
	case strings.HasPrefix(name, "manifest_phase_"):
		dim.Printf("%s ", stamp)
		fmt.Printf("plan cached: %s\n", name)
	}
}

// readProgress renders the progress snapshot as a compact key list.
func readProgress(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return "", err
	}
	var parts []string
	for _, key := range []string{"phase", "tier", "files_done", "cost"} {
		if v, ok := snapshot[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	if len(parts) == 0 {
		return string(data), nil
	}
	return strings.Join(parts, " "), nil
}
