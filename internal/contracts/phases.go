package contracts

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forgeguard/forgeguard/pkg/models"
)

// phaseHeading matches "## Phase 3: Build the API" style markdown headings.
var phaseHeading = regexp.MustCompile(`(?m)^#{1,3}\s*Phase\s+(\d+)\s*[:.-]\s*(.+)$`)

// ParsePhases extracts the numbered phases from the phases contract. The
// contract is markdown: each phase is a heading, an optional "Objective:"
// line, and an optional "Deliverables:" bullet list.
func ParsePhases(content string) ([]models.Phase, error) {
	locs := phaseHeading.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return nil, fmt.Errorf("phases contract has no phase headings")
	}

	var phases []models.Phase
	for i, loc := range locs {
		number, err := strconv.Atoi(content[loc[2]:loc[3]])
		if err != nil {
			return nil, fmt.Errorf("phase heading number: %w", err)
		}
		name := strings.TrimSpace(content[loc[4]:loc[5]])

		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := content[loc[1]:end]

		phases = append(phases, models.Phase{
			Number:       number,
			Name:         name,
			Objective:    parseObjective(body),
			Deliverables: parseDeliverables(body),
		})
	}

	sort.Slice(phases, func(i, j int) bool { return phases[i].Number < phases[j].Number })
	for i := 1; i < len(phases); i++ {
		if phases[i].Number == phases[i-1].Number {
			return nil, fmt.Errorf("duplicate phase number %d", phases[i].Number)
		}
	}
	return phases, nil
}

func parseObjective(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "objective:") {
			return strings.TrimSpace(trimmed[len("objective:"):])
		}
	}
	return ""
}

func parseDeliverables(body string) []string {
	var out []string
	inList := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "deliverables:"):
			inList = true
		case inList && (strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")):
			out = append(out, strings.TrimSpace(trimmed[2:]))
		case inList && trimmed != "":
			inList = false
		}
	}
	return out
}

// TerminalPhase returns the last numbered phase. Completing it completes
// the build.
func TerminalPhase(phases []models.Phase) (models.Phase, bool) {
	if len(phases) == 0 {
		return models.Phase{}, false
	}
	return phases[len(phases)-1], true
}

// PhaseWindow returns the phases numbered n-1, n and n+1, in order, for the
// forge_get_phase_window tool. Missing neighbours are simply absent.
func PhaseWindow(phases []models.Phase, n int) []models.Phase {
	var out []models.Phase
	for _, p := range phases {
		if p.Number >= n-1 && p.Number <= n+1 {
			out = append(out, p)
		}
	}
	return out
}

// PhaseByNumber returns the phase with the given number.
func PhaseByNumber(phases []models.Phase, n int) (models.Phase, bool) {
	for _, p := range phases {
		if p.Number == n {
			return p, true
		}
	}
	return models.Phase{}, false
}
