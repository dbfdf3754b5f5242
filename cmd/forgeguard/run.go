package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forgeguard/forgeguard/internal/broadcast"
	"github.com/forgeguard/forgeguard/internal/conductor"
	"github.com/forgeguard/forgeguard/internal/config"
	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/exec"
	"github.com/forgeguard/forgeguard/internal/git"
	"github.com/forgeguard/forgeguard/internal/governance"
	"github.com/forgeguard/forgeguard/internal/ledger"
	"github.com/forgeguard/forgeguard/internal/llm"
	"github.com/forgeguard/forgeguard/internal/planner"
	"github.com/forgeguard/forgeguard/internal/ratelimit"
	"github.com/forgeguard/forgeguard/internal/store"
	"github.com/forgeguard/forgeguard/internal/subagent"
	"github.com/forgeguard/forgeguard/internal/tier"
	"github.com/forgeguard/forgeguard/internal/tools"
	"github.com/forgeguard/forgeguard/internal/tui"
	"github.com/forgeguard/forgeguard/internal/workspace"
	"github.com/forgeguard/forgeguard/pkg/models"
)

var (
	runDir      string
	runProject  string
	runUser     string
	runBranch   string
	runResume   bool
	runHeadless bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a contract-driven build",
	Long: `Start a build over the contracts in the workspace's Forge/Contracts
directory. The phases contract drives the build: each phase is planned,
executed in dependency tiers by role-scoped sub-agents, checked by the
governance gate, then committed.

The build opens review gates along the way. In the default dashboard you
resolve them with single keys; with --headless the gates auto-resolve
(commence, approve, continue) and events print to stdout.

With --resume, the workspace git log is scanned for phase completion
markers and the build restarts at the first unfinished phase.

Examples:
  forgeguard run                       # Build the current directory
  forgeguard run --dir path/to/project # Build a specific workspace
  forgeguard run --resume              # Continue after an interrupted build
  forgeguard run --headless            # Unattended build, events to stdout`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "dir", ".", "Workspace directory to build in")
	runCmd.Flags().StringVar(&runProject, "project", "", "Project identifier (defaults to the directory name)")
	runCmd.Flags().StringVar(&runUser, "user", "local", "User identifier recorded on the build")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "Git branch to create or check out before building")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume from the last completed phase marker")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "No dashboard; auto-resolve gates and log events")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ws, err := workspace.New(runDir)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating build store: %w", err)
	}

	projectID := runProject
	if projectID == "" {
		projectID = filepath.Base(ws.Root())
	}

	// Contracts: load, pin, and materialise the pinned batch so sub-agents
	// read exactly what this build was planned against.
	memStore, found, err := loadContractStore(ctx, ws.Root(), projectID)
	if err != nil {
		return err
	}
	if found == 0 {
		return fmt.Errorf("no contracts found under %s/%s", ws.Root(), workspace.ContractsDirName)
	}
	snapshot, err := contracts.Pin(ctx, memStore, projectID)
	if err != nil {
		return err
	}
	phasesDoc, ok := snapshot.Get(contracts.TypePhases)
	if !ok {
		return fmt.Errorf("the phases contract is required to run a build")
	}
	phases, err := contracts.ParsePhases(phasesDoc.Content)
	if err != nil {
		return fmt.Errorf("parsing phases contract: %w", err)
	}
	for _, doc := range snapshot.All() {
		if err := ws.MaterializeContract(string(doc.Type)+".md", doc.Content); err != nil {
			return err
		}
	}

	// Git wiring is optional; without a repository the build still runs,
	// it just loses phase commits and resume seeding.
	var repo conductor.Repo
	branch := ""
	gitRunner := git.NewRunner(ws.Root())
	if gitRunner.IsRepo() {
		repo = gitRunner
		if runBranch != "" {
			if err := checkoutBranch(gitRunner, runBranch); err != nil {
				return err
			}
		}
		branch, _ = gitRunner.CurrentBranch()
	} else if runBranch != "" {
		return fmt.Errorf("--branch requires a git repository in %s", ws.Root())
	}

	resumeFrom := 0
	if runResume {
		resumeFrom = conductor.ResumePhase(repo)
		if resumeFrom > 0 {
			fmt.Printf("Resuming from phase %d\n", resumeFrom)
		}
	}

	build := models.Build{
		ID:            uuid.New().String()[:8],
		ProjectID:     projectID,
		UserID:        runUser,
		Status:        models.BuildStatusPending,
		Branch:        branch,
		WorkDir:       ws.Root(),
		Mode:          models.BuildModePlanExecute,
		ContractBatch: snapshot.Batch(),
		StartedAt:     time.Now().UTC(),
	}
	if err := db.CreateBuild(build); err != nil {
		return fmt.Errorf("recording build: %w", err)
	}

	emitter := broadcast.NewBroadcaster(broadcast.DefaultBufferSize)
	sub := emitter.Subscribe(runUser)
	defer sub.Close()

	// LLM plumbing: one limiter per key, shared streamer.
	keys := cfg.PoolKeys()
	if len(keys) == 0 {
		key, err := config.GetAPIKey(cfg)
		if err != nil && !cfg.Anthropic.UseBedrock {
			return err
		}
		keys = []string{key}
	}
	var budgets []ratelimit.KeyBudget
	for _, key := range keys {
		budgets = append(budgets, ratelimit.KeyBudget{
			Key:       key,
			InputTPM:  cfg.Anthropic.InputTPM,
			OutputTPM: cfg.Anthropic.OutputTPM,
		})
	}
	pool := ratelimit.NewPool(budgets)

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         anthropic.Model(cfg.Models.Default),
		APIKey:        keys[0],
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
	})
	if err != nil {
		return err
	}
	streamer := llm.NewStreamer(client, pool)

	spendCap := models.Cost(cfg.Budget.SpendCapDollars * float64(models.Dollar))
	led := ledger.New(spendCap, cfg.Budget.WarnFraction, emitter, build.ID, runUser)

	cmdRunner := exec.NewRunner()

	// The registry's scratchpad and clarify tools call back into the
	// conductor, which is constructed after the registry. The closures
	// only run once the build is underway, well after cond is set.
	var cond *conductor.Conductor
	registry := tools.NewRegistry(tools.Deps{
		Workspace: ws,
		Runner:    cmdRunner,
		Store:     memStore,
		Snapshot:  snapshot,
		ProjectID: projectID,
		Phases:    phases,
		Scratchpad: func(ctx context.Context, op, key, value string) (string, error) {
			return cond.Scratchpad(ctx, op, key, value)
		},
		Clarify: func(ctx context.Context, question string) (string, error) {
			return cond.Clarify(ctx, question)
		},
	})

	runner := subagent.NewRunner(streamer, registry, snapshot)
	plannerSvc := planner.New(runner, ws)

	executor := tier.NewExecutor(runner, ws, led, emitter, build.ID, runUser)
	executor.Concurrency = int64(cfg.Build.TierConcurrency)
	executor.TrivialChars = cfg.Build.TrivialFileChars
	executor.HandoffTimeout = cfg.Build.HandoffTimeout
	executor.CoderModel = cfg.Models.ForRole("coder")
	executor.AuditModel = cfg.Models.ForRole("auditor")
	executor.FixerModel = cfg.Models.ForRole("fixer")

	gov, err := governance.NewGate(ws, cmdRunner, snapshot)
	if err != nil {
		return fmt.Errorf("building governance gate: %w", err)
	}

	cond = conductor.New(conductor.Deps{
		Build:                build,
		Phases:               phases,
		Store:                db,
		Ledger:               led,
		Planner:              plannerSvc,
		Tiers:                planner.Tiers,
		Executor:             executor,
		Governor:             gov,
		Emitter:              emitter,
		Repo:                 repo,
		PauseThreshold:       cfg.Build.PauseThreshold,
		ClarificationLimit:   cfg.Build.ClarificationLimit,
		ClarificationTimeout: cfg.Build.ClarificationTimeout,
		TickerInterval:       cfg.Budget.TickerInterval,
		ResumeFrom:           resumeFrom,
	})

	progressSub := emitter.Subscribe(runUser)
	go trackProgress(ws, progressSub)
	defer progressSub.Close()

	done := make(chan error, 1)
	go func() {
		done <- cond.Run(ctx)
	}()

	if runHeadless {
		return runHeadlessLoop(ctx, cond, sub, done)
	}
	return tui.Run(cond, sub, done)
}

// checkoutBranch creates the branch if needed and switches to it.
func checkoutBranch(g *git.ExecRunner, branch string) error {
	exists, err := g.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		return g.CheckoutBranch(branch)
	}
	return g.CreateAndCheckoutBranch(branch)
}

// trackProgress folds build events into the .forge/progress.json snapshot
// that forgeguard watch tails.
func trackProgress(ws *workspace.Workspace, sub *broadcast.Subscription) {
	snapshot := map[string]any{"files_done": 0}
	filesDone := 0
	for ev := range sub.Events() {
		switch ev.Type {
		case broadcast.EventPhaseStart:
			snapshot["phase"] = fmt.Sprintf("Phase %v: %v", ev.Payload["phase"], ev.Payload["name"])
			filesDone = 0
			snapshot["files_done"] = 0
		case broadcast.EventTierStart:
			snapshot["tier"] = ev.Payload["tier"]
		case broadcast.EventFileGenerated:
			filesDone++
			snapshot["files_done"] = filesDone
		case broadcast.EventCostTicker, broadcast.EventCostWarning:
			snapshot["cost"] = ev.Payload["total"]
		case broadcast.EventBuildComplete, broadcast.EventBuildError, broadcast.EventBuildCancelled:
			snapshot["status"] = string(ev.Type)
		default:
			continue
		}
		_ = ws.WriteProgress(snapshot)
	}
}
