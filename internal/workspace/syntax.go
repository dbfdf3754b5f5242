package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgeguard/forgeguard/internal/exec"
)

// syntaxTimeout bounds interpreter-backed syntax checks.
const syntaxTimeout = 30 * time.Second

// SyntaxResult reports the outcome of a check_syntax call.
type SyntaxResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// CheckSyntax parses a file with the parser for its language. Go, JSON and
// YAML parse in-process; Python and JS/TS go through their interpreters when
// available. Unknown extensions pass trivially.
func (w *Workspace) CheckSyntax(ctx context.Context, runner exec.CommandRunner, rel string) (SyntaxResult, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return SyntaxResult{}, err
	}
	if _, err := os.Stat(abs); err != nil {
		return SyntaxResult{}, err
	}

	switch strings.ToLower(filepath.Ext(rel)) {
	case ".go":
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, abs, nil, parser.AllErrors); err != nil {
			return SyntaxResult{OK: false, Message: err.Error()}, nil
		}
		return SyntaxResult{OK: true}, nil

	case ".json":
		data, err := os.ReadFile(abs)
		if err != nil {
			return SyntaxResult{}, err
		}
		if !json.Valid(data) {
			return SyntaxResult{OK: false, Message: "invalid JSON"}, nil
		}
		return SyntaxResult{OK: true}, nil

	case ".yaml", ".yml":
		data, err := os.ReadFile(abs)
		if err != nil {
			return SyntaxResult{}, err
		}
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return SyntaxResult{OK: false, Message: err.Error()}, nil
		}
		return SyntaxResult{OK: true}, nil

	case ".py":
		return w.interpreterCheck(ctx, runner, fmt.Sprintf("python3 -c 'import ast,sys; ast.parse(open(sys.argv[1]).read())' %s", shellQuote(rel)))

	case ".js", ".mjs", ".cjs":
		return w.interpreterCheck(ctx, runner, "node --check "+shellQuote(rel))

	case ".ts", ".tsx":
		return w.interpreterCheck(ctx, runner, "npx --no-install tsc --noEmit --allowJs false "+shellQuote(rel))

	default:
		return SyntaxResult{OK: true, Message: "no parser for this file type"}, nil
	}
}

func (w *Workspace) interpreterCheck(ctx context.Context, runner exec.CommandRunner, command string) (SyntaxResult, error) {
	if runner == nil {
		return SyntaxResult{OK: true, Message: "no command runner, check skipped"}, nil
	}
	res, err := runner.Shell(ctx, w.root, command, syntaxTimeout)
	if err != nil {
		// Missing interpreter is not a syntax failure.
		return SyntaxResult{OK: true, Message: "checker unavailable: " + err.Error()}, nil
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return SyntaxResult{OK: false, Message: msg}, nil
	}
	return SyntaxResult{OK: true}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
