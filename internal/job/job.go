// ABOUTME: Job runner: assembles handler, tools, guidelines, and session per job
// ABOUTME: Maps loop outcomes to job statuses and runs many jobs concurrently

package job

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deskhand/deskhand/internal/agent"
	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/health"
	"github.com/deskhand/deskhand/internal/log"
	"github.com/deskhand/deskhand/internal/session"
	"github.com/deskhand/deskhand/internal/tools"
	"github.com/deskhand/deskhand/pkg/ai"
)

const (
	defaultDisplayWidth  = 1024
	defaultDisplayHeight = 768
)

// Status is a job's terminal state.
type Status string

const (
	// StatusCompleted means the loop returned a value.
	StatusCompleted Status = "COMPLETED"
	// StatusPaused means a recoverable guideline abort (health check, UI
	// mismatch); the job can be resumed over the same session.
	StatusPaused Status = "PAUSED"
	// StatusError covers configuration, provider, and stall failures.
	StatusError Status = "ERROR"
)

// Job describes one unit of work against one target machine.
type Job struct {
	ID           uuid.UUID
	Tenant       string
	Target       string
	Instructions string
	Provider     ai.Provider
	Model        string
	MaxTokens    int
}

// Outcome is the executor-visible result of one job.
type Outcome struct {
	JobID  uuid.UUID
	Status Status
	Value  any
	Reason string
}

// Runner executes jobs against the configured providers and event log.
type Runner struct {
	cfg     *config.Config
	store   *session.Store
	checker health.Checker
}

// NewRunner builds a runner over the shared event log store.
func NewRunner(cfg *config.Config, store *session.Store) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   store,
		checker: health.NewHTTPChecker(cfg.Agent.DaemonPort),
	}
}

// Execute runs one job to a terminal state. Configuration and provider
// failures surface as an ERROR outcome, never as a panic.
func (r *Runner) Execute(ctx context.Context, job Job) Outcome {
	outcome := Outcome{JobID: job.ID}

	providerCfg := r.cfg.ProviderFor(job.Tenant, job.Provider)
	model := job.Model
	if model == "" {
		model = providerCfg.Model
	}

	handler, err := ai.NewHandler(job.Provider, ai.HandlerOptions{
		Model:        model,
		ImagesToKeep: r.cfg.Agent.ImagesToKeep,
	})
	if err != nil {
		outcome.Status = StatusError
		outcome.Reason = err.Error()
		return outcome
	}
	if err := handler.InitializeClient(r.cfg.CredentialsFor(job.Tenant, job.Provider)); err != nil {
		outcome.Status = StatusError
		outcome.Reason = err.Error()
		return outcome
	}

	collection := tools.NewCollection(
		tools.NewComputer(job.Target, "", defaultDisplayWidth, defaultDisplayHeight).WithPort(r.cfg.Agent.DaemonPort),
		tools.NewExtraction(),
		tools.NewUIMismatch(),
	)

	sess := r.store.Session(job.ID.String())
	if err := r.seed(ctx, sess, job.Instructions); err != nil {
		outcome.Status = StatusError
		outcome.Reason = err.Error()
		return outcome
	}

	maxTokens := job.MaxTokens
	if maxTokens == 0 {
		maxTokens = r.cfg.Agent.MaxTokens
	}

	loop := &agent.Loop{
		Handler: handler,
		Session: sess,
		Tools:   collection,
		Guidelines: []agent.Guideline{
			agent.NewHealthCheck(r.checker, job.Target),
			agent.NewUIMismatch(),
			agent.NewExtraction(),
		},
		System:      SystemPrompt(r.cfg.Agent.SystemSuffix),
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: r.cfg.Agent.Temperature,
		StallLimit:  r.cfg.Agent.StallLimit,
	}

	log.Info("job %s: starting (provider=%s model=%s target=%s)", job.ID, job.Provider, model, job.Target)
	result, err := loop.Run(ctx)
	if err != nil {
		outcome.Status = StatusError
		outcome.Reason = err.Error()
		log.Error("job %s: %s", job.ID, outcome.Reason)
		return outcome
	}

	if result.Aborted() {
		outcome.Status = classifyAbort(result.Abort)
		outcome.Reason = fmt.Sprintf("%s: %s", result.Abort.Error, result.Abort.ErrorDescription)
		log.Warn("job %s: %s (%s)", job.ID, outcome.Reason, outcome.Status)
		return outcome
	}

	outcome.Status = StatusCompleted
	outcome.Value = result.Value
	log.Info("job %s: completed", job.ID)
	return outcome
}

// seed appends the initial user message unless the session already has
// history; a non-empty session means the job is being resumed.
func (r *Runner) seed(ctx context.Context, sess *session.Session, instructions string) error {
	history, err := sess.HistoryForAPI(ctx)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		return nil
	}
	return sess.AddEvent(ctx, ai.RoleUser, session.EventMessage,
		[]ai.Content{{Type: ai.ContentText, Text: instructions}})
}

// classifyAbort maps abort categories to job statuses. Health and UI aborts
// are recoverable pauses; anything else is an error.
func classifyAbort(abort *agent.Abort) Status {
	switch abort.Error {
	case "Target Health Check Failed", "UI Mismatch Detected":
		return StatusPaused
	default:
		return StatusError
	}
}

// ExecuteAll runs jobs concurrently, at most limit at a time. Per-target
// mutual exclusion is the caller's responsibility. The returned slice is
// ordered like the input.
func (r *Runner) ExecuteAll(ctx context.Context, jobs []Job, limit int) []Outcome {
	if limit <= 0 {
		limit = len(jobs)
	}

	outcomes := make([]Outcome, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			outcomes[i] = r.Execute(ctx, job)
			return nil
		})
	}

	// Workers only record outcomes; the group error is always nil.
	_ = g.Wait()
	return outcomes
}
