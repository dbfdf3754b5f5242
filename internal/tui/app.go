package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/conductor"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// eventMsg wraps one broadcast event for the update loop.
type eventMsg struct {
	event broadcast.Event
}

// streamClosedMsg signals the subscription channel closed.
type streamClosedMsg struct{}

// buildDoneMsg carries the conductor's exit error.
type buildDoneMsg struct {
	err error
}

// inputMode says what a submitted text line resolves.
type inputMode int

const (
	inputNone inputMode = iota
	inputClarify
	inputReject
	inputInterject
)

// Dashboard is the bubbletea model for forgeguard run.
type Dashboard struct {
	cond *conductor.Conductor
	sub  *broadcast.Subscription
	done <-chan error

	header *Header
	events *EventsPanel
	footer *Footer
	input  *InputField
	mode   inputMode

	activeGate models.GateKind
	paused     bool
	finished   bool
	fileStates map[string]string

	width  int
	height int
}

// NewDashboard creates the dashboard for one running build.
func NewDashboard(cond *conductor.Conductor, sub *broadcast.Subscription, done <-chan error) *Dashboard {
	return &Dashboard{
		cond:       cond,
		sub:        sub,
		done:       done,
		header:     NewHeader(),
		events:     NewEventsPanel(),
		footer:     NewFooter(),
		input:      NewInputField(),
		fileStates: make(map[string]string),
	}
}

// Init starts the event and completion listeners.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.nextEvent(), d.awaitDone())
}

func (d *Dashboard) nextEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-d.sub.Events()
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (d *Dashboard) awaitDone() tea.Cmd {
	return func() tea.Msg {
		return buildDoneMsg{err: <-d.done}
	}
}

// Update handles messages.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.header.SetWidth(msg.Width)
		d.footer.SetWidth(msg.Width)
		d.input.SetWidth(msg.Width)
		d.layout()
		return d, nil

	case eventMsg:
		d.apply(msg.event)
		return d, d.nextEvent()

	case streamClosedMsg:
		return d, nil

	case buildDoneMsg:
		d.finished = true
		if msg.err != nil {
			d.footer.SetBuildDone(false, msg.err.Error())
		} else {
			d.footer.SetBuildDone(true, "build complete")
		}
		return d, nil

	case TextSubmittedMsg:
		return d, d.submitText(msg.Text)

	case tea.KeyMsg:
		if d.input.Focused() {
			var cmd tea.Cmd
			d.input, cmd = d.input.Update(msg)
			d.layout()
			return d, cmd
		}
		return d.handleKey(msg)
	}

	if d.input.Focused() {
		var cmd tea.Cmd
		d.input, cmd = d.input.Update(msg)
		return d, cmd
	}
	return d, nil
}

// handleKey dispatches single-key commands when the input field is idle.
func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c", "q":
		if d.finished {
			return d, tea.Quit
		}
		d.cond.Cancel()
		d.footer.SetMessage("cancelling...", false)
		return d, nil
	case "up":
		d.events.ScrollUp()
		return d, nil
	case "down":
		d.events.ScrollDown()
		return d, nil
	case "i":
		d.mode = inputInterject
		d.input.Focus("Interject (queued for the next agent turn):")
		d.layout()
		return d, nil
	}

	if d.paused {
		switch key {
		case "r":
			d.resolvePause(models.ResumeRetry)
		case "s":
			d.resolvePause(models.ResumeSkip)
		case "x":
			d.resolvePause(models.ResumeAbort)
		}
		return d, nil
	}

	switch d.activeGate {
	case models.GateIDEReady:
		switch key {
		case "c":
			d.resolveGate(models.GateIDEReady, "commence")
		case "x":
			d.resolveGate(models.GateIDEReady, "cancel")
		}
	case models.GatePlanReview:
		switch key {
		case "a":
			d.resolveGate(models.GatePlanReview, "approve")
		case "r":
			d.mode = inputReject
			d.input.Focus("Rejection reason:")
			d.layout()
		}
	case models.GatePhaseReview:
		switch key {
		case "c":
			d.resolveGate(models.GatePhaseReview, "continue")
		case "f":
			d.resolveGate(models.GatePhaseReview, "fix")
		}
	}
	return d, nil
}

// submitText resolves whatever the input field was opened for.
func (d *Dashboard) submitText(text string) tea.Cmd {
	mode := d.mode
	d.mode = inputNone
	d.layout()

	switch mode {
	case inputClarify:
		d.resolveGateResponse(models.GateClarification, conductor.GateResponse{Action: text})
	case inputReject:
		d.resolveGateResponse(models.GatePlanReview, conductor.GateResponse{
			Action:  "reject",
			Payload: map[string]any{"reason": text},
		})
	case inputInterject:
		d.cond.Interject(text)
	}
	return nil
}

func (d *Dashboard) resolveGate(kind models.GateKind, action string) {
	d.resolveGateResponse(kind, conductor.GateResponse{Action: action})
}

func (d *Dashboard) resolveGateResponse(kind models.GateKind, resp conductor.GateResponse) {
	if err := d.cond.Gates().Resolve(kind, resp); err != nil {
		d.footer.SetMessage(err.Error(), false)
		return
	}
	d.activeGate = ""
	d.footer.SetGateHints("")
}

func (d *Dashboard) resolvePause(action models.ResumeAction) {
	if err := d.cond.Gates().ResolvePause(conductor.ResumeCommand{Action: action}); err != nil {
		d.footer.SetMessage(err.Error(), false)
		return
	}
	d.paused = false
	d.footer.SetGateHints("")
}

// apply folds one build event into the model state.
func (d *Dashboard) apply(ev broadcast.Event) {
	d.events.Append(ev)
	pl := ev.Payload

	switch ev.Type {
	case broadcast.EventPhaseStart:
		d.header.SetPhase(fmt.Sprintf("Phase %v: %v", pl["phase"], pl["name"]))

	case broadcast.EventIDEReady:
		d.activeGate = models.GateIDEReady
		d.footer.SetGateHints("c commence │ x cancel")
	case broadcast.EventPlanReview:
		d.activeGate = models.GatePlanReview
		d.footer.SetGateHints("a approve │ r reject")
	case broadcast.EventPhaseReview:
		d.activeGate = models.GatePhaseReview
		d.footer.SetGateHints("c continue │ f fix")
	case broadcast.EventClarificationRequested:
		d.activeGate = models.GateClarification
		d.mode = inputClarify
		d.input.Focus(fmt.Sprintf("Answer (%v/%v): %v", pl["number"], pl["limit"], pl["question"]))
		d.layout()
	case broadcast.EventBuildPaused:
		d.paused = true
		d.footer.SetGateHints("r retry │ s skip │ x abort")
	case broadcast.EventBuildResumed:
		d.paused = false
		d.footer.SetGateHints("")

	case broadcast.EventFileGenerating:
		d.fileStates[fmt.Sprintf("%v", pl["path"])] = "building"
	case broadcast.EventFileGenerated:
		d.fileStates[fmt.Sprintf("%v", pl["path"])] = "generated"
	case broadcast.EventFileFixed:
		d.fileStates[fmt.Sprintf("%v", pl["path"])] = "fixed"
	case broadcast.EventFileAudited:
		if fmt.Sprintf("%v", pl["verdict"]) == "FAIL" {
			d.fileStates[fmt.Sprintf("%v", pl["path"])] = "failed"
		}

	case broadcast.EventCostTicker, broadcast.EventCostWarning:
		d.footer.SetCost(fmt.Sprintf("%v", pl["total"]))
	case broadcast.EventBuildActivityStatus:
		if cost, ok := pl["cost"]; ok {
			d.footer.SetCost(fmt.Sprintf("%v", cost))
		}
	}

	d.footer.SetFileCounts(d.countFiles())
}

func (d *Dashboard) countFiles() FileCounts {
	var c FileCounts
	for _, state := range d.fileStates {
		switch state {
		case "building":
			c.Building++
		case "generated":
			c.Generated++
		case "fixed":
			c.Fixed++
		case "failed":
			c.Failed++
		}
	}
	return c
}

// layout sizes the events panel to fill between header, input, and footer.
func (d *Dashboard) layout() {
	body := d.height - d.header.Height() - d.input.Height() - 1
	if body < 3 {
		body = 3
	}
	d.events.SetSize(d.width, body)
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	sections := []string{d.header.View(), d.events.View()}
	if in := d.input.View(); in != "" {
		sections = append(sections, in)
	}
	sections = append(sections, d.footer.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Run drives the dashboard until the build finishes and the user exits.
func Run(cond *conductor.Conductor, sub *broadcast.Subscription, done <-chan error) error {
	p := tea.NewProgram(NewDashboard(cond, sub, done), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
