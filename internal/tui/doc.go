// Package tui renders the live build dashboard for forgeguard run.
//
// The dashboard subscribes to the build's event broadcaster and turns the
// typed event stream into three regions: a header with the logo and current
// phase, a scrolling event log with per-file status, and a footer carrying
// running cost and context-sensitive key hints. User gates (IDE-ready, plan
// review, phase review, clarifications, pause/resume) surface as prompts and
// are resolved with single keys or a text input.
package tui
