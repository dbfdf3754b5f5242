package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/ledger"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// maxEntries bounds the in-memory event history.
const maxEntries = 500

// entry is one rendered line in the events panel.
type entry struct {
	at   time.Time
	kind broadcast.EventType
	text string
}

// EventsPanel displays a scrollable view of build events.
type EventsPanel struct {
	entries      []entry
	scrollOffset int
	autoScroll   bool
	width        int
	height       int

	titleStyle lipgloss.Style
	timeStyle  lipgloss.Style
	kindStyles map[broadcast.EventType]lipgloss.Style
	plainStyle lipgloss.Style
}

// NewEventsPanel creates a new EventsPanel.
func NewEventsPanel() *EventsPanel {
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	good := lipgloss.NewStyle().Foreground(lipgloss.Color("28"))
	gate := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)

	return &EventsPanel{
		autoScroll: true,
		width:      80,
		height:     20,

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Bold(true),
		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")),
		plainStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		kindStyles: map[broadcast.EventType]lipgloss.Style{
			broadcast.EventCostWarning:            warn,
			broadcast.EventCostExceeded:           bad,
			broadcast.EventBuildError:             bad,
			broadcast.EventGovernanceFail:         bad,
			broadcast.EventFileFixing:             warn,
			broadcast.EventGovernancePass:         good,
			broadcast.EventBuildComplete:          good,
			broadcast.EventFileGenerated:          good,
			broadcast.EventIDEReady:               gate,
			broadcast.EventPlanReview:             gate,
			broadcast.EventPhaseReview:            gate,
			broadcast.EventBuildPaused:            gate,
			broadcast.EventClarificationRequested: gate,
		},
	}
}

// SetSize sets the panel dimensions.
func (p *EventsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Append adds one event line and keeps the tail pinned when auto-scrolling.
func (p *EventsPanel) Append(ev broadcast.Event) {
	text := describe(ev)
	if text == "" {
		return
	}
	p.entries = append(p.entries, entry{at: ev.Timestamp, kind: ev.Type, text: text})
	if len(p.entries) > maxEntries {
		p.entries = p.entries[len(p.entries)-maxEntries:]
	}
}

// ScrollUp moves the viewport toward older entries and pauses auto-scroll.
func (p *EventsPanel) ScrollUp() {
	p.autoScroll = false
	if p.scrollOffset < len(p.entries)-1 {
		p.scrollOffset++
	}
}

// ScrollDown moves the viewport toward newer entries. Reaching the tail
// re-enables auto-scroll.
func (p *EventsPanel) ScrollDown() {
	if p.scrollOffset > 0 {
		p.scrollOffset--
	}
	if p.scrollOffset == 0 {
		p.autoScroll = true
	}
}

// View renders the panel.
func (p *EventsPanel) View() string {
	inner := p.height - 1
	if inner < 1 {
		inner = 1
	}

	end := len(p.entries)
	if !p.autoScroll {
		end -= p.scrollOffset
	}
	start := end - inner
	if start < 0 {
		start = 0
	}

	var lines []string
	lines = append(lines, p.titleStyle.Render(" Events"))
	for _, e := range p.entries[start:end] {
		style, ok := p.kindStyles[e.kind]
		if !ok {
			style = p.plainStyle
		}
		line := p.timeStyle.Render(e.at.Format("15:04:05")) + " " + style.Render(e.text)
		lines = append(lines, truncate(line, p.width))
	}
	return strings.Join(lines, "\n")
}

// describe formats one event for display. Unknown or purely internal events
// return the empty string and are not shown.
func describe(ev broadcast.Event) string {
	pl := ev.Payload
	switch ev.Type {
	case broadcast.EventPhaseStart:
		return fmt.Sprintf("── Phase %v: %v ──", pl["phase"], pl["name"])
	case broadcast.EventTierStart:
		return fmt.Sprintf("tier %v started (%d files)", pl["tier"], countFilesPayload(pl["files"]))
	case broadcast.EventTierComplete:
		return fmt.Sprintf("tier %v complete (%v failed)", pl["tier"], pl["failed"])
	case broadcast.EventFileGenerating:
		return fmt.Sprintf("building %v", pl["path"])
	case broadcast.EventFileGenerated:
		return fmt.Sprintf("wrote %v", pl["path"])
	case broadcast.EventFileFixing:
		return fmt.Sprintf("fixing %v", pl["path"])
	case broadcast.EventFileFixed:
		return fmt.Sprintf("fixed %v", pl["path"])
	case broadcast.EventFileAudited:
		return fmt.Sprintf("audited %v: %v", pl["path"], pl["verdict"])
	case broadcast.EventSubagentStart:
		return fmt.Sprintf("%v agent started (%v)", pl["role"], pl["handoff"])
	case broadcast.EventSubagentDone:
		return fmt.Sprintf("%v agent done (%v)", pl["role"], pl["status"])
	case broadcast.EventGovernanceCheck:
		return fmt.Sprintf("%v %v: %v", pl["code"], pl["name"], pl["verdict"])
	case broadcast.EventGovernancePass:
		return "governance passed"
	case broadcast.EventGovernanceFail:
		return "governance FAILED"
	case broadcast.EventRecoveryPlan:
		return "governance recovery round started"
	case broadcast.EventCostTicker:
		return fmt.Sprintf("spend %v", pl["total"])
	case broadcast.EventCostWarning:
		return fmt.Sprintf("spend warning: %v of cap", pl["total"])
	case broadcast.EventCostExceeded:
		return "spend cap exceeded"
	case broadcast.EventBuildTurn:
		return fmt.Sprintf("phase overview: %v (%v files)", pl["overview"], pl["files"])
	case broadcast.EventBuildLog:
		return fmt.Sprintf("%v", pl["message"])
	case broadcast.EventBuildInterjection:
		return fmt.Sprintf("interjection queued: %v", pl["message"])
	case broadcast.EventScratchpadWrite:
		return fmt.Sprintf("scratchpad %v %v", pl["op"], pl["key"])
	case broadcast.EventIDEReady:
		return "workspace ready, awaiting commence"
	case broadcast.EventPlanReview:
		return fmt.Sprintf("plan ready: %d files, est %v", countFilesPayload(pl["manifest"]), estimateTotal(pl["estimate"]))
	case broadcast.EventPhaseReview:
		return fmt.Sprintf("phase %v partial after loop %v, awaiting review", pl["phase"], pl["loop_count"])
	case broadcast.EventClarificationRequested:
		return fmt.Sprintf("question %v/%v: %v", pl["number"], pl["limit"], pl["question"])
	case broadcast.EventBuildPaused:
		return fmt.Sprintf("build paused: %v", pl["reason"])
	case broadcast.EventBuildResumed:
		return fmt.Sprintf("build resumed: %v", pl["action"])
	case broadcast.EventBuildComplete:
		return "build complete"
	case broadcast.EventBuildError:
		return fmt.Sprintf("build error: %v", pl["error"])
	case broadcast.EventBuildCancelled:
		return "build cancelled"
	default:
		return ""
	}
}

// countFilesPayload counts slice-valued payloads without caring about the
// element type the emitter used.
func countFilesPayload(v any) int {
	switch s := v.(type) {
	case []string:
		return len(s)
	case []models.ManifestEntry:
		return len(s)
	case []any:
		return len(s)
	default:
		return 0
	}
}

// estimateTotal pulls the padded total out of a plan review estimate.
func estimateTotal(v any) string {
	if est, ok := v.(ledger.Estimate); ok {
		return est.Total.String()
	}
	return fmt.Sprintf("%v", v)
}

func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	// Styled lines carry escape sequences; trim on the rendered rune count.
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
