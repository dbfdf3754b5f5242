package tier

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Lessons is the shared memory between file pipelines in a tier and across
// tiers: confirmed-fixed patterns, patterns that proved unsafe, and per-file
// export summaries. Safe for concurrent use.
type Lessons struct {
	mu        sync.Mutex
	fixed     []string
	unsafe    []string
	summaries map[string]string
}

// NewLessons creates an empty lessons record.
func NewLessons() *Lessons {
	return &Lessons{summaries: map[string]string{}}
}

// AddFixed records a pattern a fixer confirmed as the correct repair.
func (l *Lessons) AddFixed(pattern string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fixed = appendOnce(l.fixed, pattern)
}

// AddUnsafe records a pattern that caused an audit failure.
func (l *Lessons) AddUnsafe(pattern string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsafe = appendOnce(l.unsafe, pattern)
}

// AddSummary records what a completed file exports.
func (l *Lessons) AddSummary(path, summary string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summaries[path] = summary
}

// Render formats the lessons as prompt context. Empty lessons render to an
// empty string so callers can skip the section.
func (l *Lessons) Render() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.fixed) == 0 && len(l.unsafe) == 0 && len(l.summaries) == 0 {
		return ""
	}

	var b strings.Builder
	if len(l.fixed) > 0 {
		b.WriteString("Confirmed working patterns:\n")
		for _, p := range l.fixed {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(l.unsafe) > 0 {
		b.WriteString("Patterns that caused audit failures, avoid them:\n")
		for _, p := range l.unsafe {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(l.summaries) > 0 {
		b.WriteString("Already completed files:\n")
		paths := make([]string, 0, len(l.summaries))
		for p := range l.summaries {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s: %s\n", p, l.summaries[p])
		}
	}
	return b.String()
}

func appendOnce(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
