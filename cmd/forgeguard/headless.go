package main

import (
	"context"
	"time"

	"github.com/fatih/color"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/conductor"
	"github.com/forgeguard/forgeguard/pkg/models"
)

// runHeadlessLoop prints the event stream and auto-resolves gates so an
// unattended build keeps moving. Paused builds abort: repeated failures
// with nobody watching should stop spending.
func runHeadlessLoop(ctx context.Context, cond *conductor.Conductor, sub *broadcast.Subscription, done <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return <-done
		case err := <-done:
			if err != nil {
				return err
			}
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return <-done
			}
			printEvent(ev)
			autoResolve(cond, ev)
		}
	}
}

// autoResolve answers user gates with their continue action.
func autoResolve(cond *conductor.Conductor, ev broadcast.Event) {
	switch ev.Type {
	case broadcast.EventIDEReady:
		cond.Gates().Resolve(models.GateIDEReady, conductor.GateResponse{Action: "commence"})
	case broadcast.EventPlanReview:
		cond.Gates().Resolve(models.GatePlanReview, conductor.GateResponse{Action: "approve"})
	case broadcast.EventPhaseReview:
		cond.Gates().Resolve(models.GatePhaseReview, conductor.GateResponse{Action: "continue"})
	case broadcast.EventClarificationRequested:
		// An empty answer yields the sentinel without waiting for the timeout.
		cond.Gates().Resolve(models.GateClarification, conductor.GateResponse{})
	case broadcast.EventBuildPaused:
		cond.Gates().ResolvePause(conductor.ResumeCommand{Action: models.ResumeAbort})
	}
}

// printEvent renders one event as a log line.
func printEvent(ev broadcast.Event) {
	stamp := ev.Timestamp.Format(time.TimeOnly)
	pl := ev.Payload

	line := func(c *color.Color, format string, args ...any) {
		color.New(color.Faint).Printf("%s ", stamp)
		c.Printf(format+"\n", args...)
	}
	plain := color.New(color.Reset)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed, color.Bold)
	gate := color.New(color.FgCyan, color.Bold)

	switch ev.Type {
	case broadcast.EventPhaseStart:
		line(gate, "=== Phase %v: %v ===", pl["phase"], pl["name"])
	case broadcast.EventTierStart:
		line(plain, "tier %v started", pl["tier"])
	case broadcast.EventFileGenerated:
		line(good, "wrote %v", pl["path"])
	case broadcast.EventFileFixing:
		line(warn, "fixing %v", pl["path"])
	case broadcast.EventFileAudited:
		line(plain, "audited %v: %v", pl["path"], pl["verdict"])
	case broadcast.EventGovernancePass:
		line(good, "governance passed")
	case broadcast.EventGovernanceFail:
		line(bad, "governance failed")
	case broadcast.EventRecoveryPlan:
		line(warn, "governance recovery round started")
	case broadcast.EventCostTicker:
		line(plain, "spend %v", pl["total"])
	case broadcast.EventCostWarning:
		line(warn, "spend warning: %v", pl["total"])
	case broadcast.EventCostExceeded:
		line(bad, "spend cap exceeded")
	case broadcast.EventPlanReview:
		line(gate, "plan: %v chunks (auto-approved)", pl["chunks"])
	case broadcast.EventClarificationRequested:
		line(warn, "clarification %v/%v: %v (auto-answered)", pl["number"], pl["limit"], pl["question"])
	case broadcast.EventBuildPaused:
		line(bad, "paused: %v (aborting, headless)", pl["reason"])
	case broadcast.EventBuildComplete:
		line(good, "build complete")
	case broadcast.EventBuildError:
		line(bad, "build error: %v", pl["error"])
	case broadcast.EventBuildCancelled:
		line(warn, "build cancelled")
	case broadcast.EventBuildLog:
		line(plain, "%v", pl["message"])
	default:
		// High-frequency stream events stay quiet in headless mode.
	}
}
