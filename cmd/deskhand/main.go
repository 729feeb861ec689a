// ABOUTME: deskhand entry point: config, provider registration, job execution
// ABOUTME: Runs one job from flags or a batch from a YAML job file

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/job"
	"github.com/deskhand/deskhand/internal/log"
	"github.com/deskhand/deskhand/internal/session"
	"github.com/deskhand/deskhand/pkg/ai"
	"github.com/deskhand/deskhand/pkg/ai/provider/anthropic"
	"github.com/deskhand/deskhand/pkg/ai/provider/cua"
	"github.com/deskhand/deskhand/pkg/ai/provider/openai"
	"github.com/deskhand/deskhand/pkg/ai/provider/uitars"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "deskhand: %v\n", err)
		os.Exit(1)
	}
}

func registerProviders() {
	ai.RegisterHandler(ai.ProviderAnthropic, func(opts ai.HandlerOptions) ai.Handler {
		return anthropic.New(opts)
	})
	ai.RegisterHandler(ai.ProviderOpenAI, func(opts ai.HandlerOptions) ai.Handler {
		return openai.New(opts)
	})
	ai.RegisterHandler(ai.ProviderOpenAICUA, func(opts ai.HandlerOptions) ai.Handler {
		return cua.New(opts)
	})
	ai.RegisterHandler(ai.ProviderUITARS, func(opts ai.HandlerOptions) ai.Handler {
		return uitars.New(opts)
	})
}

// jobSpec is one entry of a -jobs YAML file.
type jobSpec struct {
	Tenant       string `yaml:"tenant"`
	Target       string `yaml:"target"`
	Instructions string `yaml:"instructions"`
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		provider   = flag.String("provider", string(ai.ProviderAnthropic), "provider: anthropic, openai, openai-cua, uitars")
		model      = flag.String("model", "", "model name (provider default when empty)")
		tenant     = flag.String("tenant", "", "tenant whose provider overrides apply")
		target     = flag.String("target", "", "target machine address")
		task       = flag.String("task", "", "instructions for a single job")
		jobsFile   = flag.String("jobs", "", "YAML file with a list of jobs")
		eventLog   = flag.String("event-log", "", "event log database path (overrides config)")
		parallel   = flag.Int("parallel", 4, "max concurrently running jobs")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	// A missing .env file is fine; env vars may come from the environment.
	_ = godotenv.Load()

	if *verbose {
		log.SetLevel(log.LevelDebug)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if !*verbose && cfg.LogLevel != "" {
		if lvl, ok := log.ParseLevel(cfg.LogLevel); ok {
			log.SetLevel(lvl)
		} else {
			log.Warn("unknown log_level %q in config, keeping info", cfg.LogLevel)
		}
	}
	if *eventLog != "" {
		cfg.EventLog = *eventLog
	}

	registerProviders()

	jobs, err := buildJobs(*jobsFile, *task, *tenant, *target, *provider, *model)
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.EventLog)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := job.NewRunner(cfg, store)
	outcomes := runner.ExecuteAll(ctx, jobs, *parallel)

	failed := false
	enc := json.NewEncoder(os.Stdout)
	for _, outcome := range outcomes {
		if outcome.Status == job.StatusError {
			failed = true
		}
		if err := enc.Encode(map[string]any{
			"job_id": outcome.JobID.String(),
			"status": string(outcome.Status),
			"value":  outcome.Value,
			"reason": outcome.Reason,
		}); err != nil {
			return err
		}
	}

	if failed {
		return fmt.Errorf("one or more jobs failed")
	}
	return nil
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		log.Warn("no config file found, using defaults and environment credentials")
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildJobs(jobsFile, task, tenant, target, provider, model string) ([]job.Job, error) {
	if jobsFile != "" {
		data, err := os.ReadFile(jobsFile)
		if err != nil {
			return nil, fmt.Errorf("read jobs file: %w", err)
		}
		var specs []jobSpec
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return nil, fmt.Errorf("parse jobs file: %w", err)
		}
		if len(specs) == 0 {
			return nil, fmt.Errorf("jobs file contains no jobs")
		}

		jobs := make([]job.Job, 0, len(specs))
		for _, s := range specs {
			if s.Instructions == "" {
				return nil, fmt.Errorf("job without instructions in %s", jobsFile)
			}
			p := ai.Provider(s.Provider)
			if s.Provider == "" {
				p = ai.Provider(provider)
			}
			jobs = append(jobs, job.Job{
				ID:           uuid.New(),
				Tenant:       s.Tenant,
				Target:       s.Target,
				Instructions: s.Instructions,
				Provider:     p,
				Model:        s.Model,
				MaxTokens:    s.MaxTokens,
			})
		}
		return jobs, nil
	}

	if task == "" {
		return nil, fmt.Errorf("either -task or -jobs is required")
	}
	return []job.Job{{
		ID:           uuid.New(),
		Tenant:       tenant,
		Target:       target,
		Instructions: task,
		Provider:     ai.Provider(provider),
		Model:        model,
	}}, nil
}
