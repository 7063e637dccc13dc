// Command orchestratord is the daemon entrypoint: it wires config,
// logging, Redis, the Worker/Health/Revival components, and the admin
// HTTP surface together and runs until terminated.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maruel/genai"
	"github.com/maruel/genai/providers"
	"golang.org/x/sync/errgroup"

	"github.com/caic-xyz/orchestrator/internal/adminhttp"
	"github.com/caic-xyz/orchestrator/internal/agentrunner"
	"github.com/caic-xyz/orchestrator/internal/agentrunner/claude"
	"github.com/caic-xyz/orchestrator/internal/branch"
	"github.com/caic-xyz/orchestrator/internal/bridge"
	"github.com/caic-xyz/orchestrator/internal/config"
	"github.com/caic-xyz/orchestrator/internal/credwatch"
	"github.com/caic-xyz/orchestrator/internal/gitutil"
	"github.com/caic-xyz/orchestrator/internal/health"
	"github.com/caic-xyz/orchestrator/internal/jobstore"
	"github.com/caic-xyz/orchestrator/internal/logging"
	"github.com/caic-xyz/orchestrator/internal/orchestrator"
	"github.com/caic-xyz/orchestrator/internal/pipeline"
	"github.com/caic-xyz/orchestrator/internal/revival"
	"github.com/caic-xyz/orchestrator/internal/steering"
	"github.com/caic-xyz/orchestrator/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	logging.Init(logging.Options{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("orchestratord: failed to load config", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	store := jobstore.NewRedis(rdb)
	steeringQueue := steering.NewRedis(rdb)
	branchCoord := &branch.Coordinator{Git: gitutil.Client{}, Timeout: cfg.GitTimeout}

	classifierProvider := newProvider(ctx, cfg.ClassifierModel)
	summarizerProvider := newProvider(ctx, cfg.SummarizerModel)
	watchdogProvider := newProvider(ctx, cfg.WatchdogModel)

	agentEnv := staticAgentEnv(cfg.LLMAPIKey)
	if cfg.CredentialsPath != "" {
		watcher, err := credwatch.New(ctx, cfg.CredentialsPath, "ANTHROPIC_API_KEY")
		if err != nil {
			slog.Warn("orchestratord: failed to watch credentials file, falling back to static key", "path", cfg.CredentialsPath, "err", err)
		} else {
			agentEnv = watcher.Env
		}
	}

	workers := worker.NewManager(worker.Deps{
		Store:      store,
		Steering:   steeringQueue,
		Branch:     branchCoord,
		Backend:    claude.Backend{},
		Registry:   agentrunner.NewRegistry(),
		Summarizer: &pipeline.Summarizer{Primary: summarizerProvider},
		Classifier: &pipeline.Classifier{Provider: classifierProvider},
		Judge:      agentrunner.NewJudge(watchdogProvider),
		Sender:     logSender{},
		Reactor:    logReactor{},
		Responder:  logResponder{},
		ProjectConfig: func(projectKey string) bridge.ProjectConfig {
			return bridge.ProjectConfig{WorkingDirectory: cfg.Projects[projectKey], AutoMerge: cfg.AutoMerge}
		},
		AgentEnv:            agentEnv,
		MaxAutoContinues:    cfg.MaxAutoContinues,
		WatchdogEveryNTools: cfg.WatchdogEveryNTools,
		IdlePollBackoff:     cfg.WorkerIdlePollBackoff,
		SystemPromptPath:    cfg.SystemPromptPath,
	})

	monitor := health.NewMonitor(health.Deps{
		Store:          store,
		WorkerAlive:    workers.IsAlive,
		CheckInterval:  cfg.JobHealthCheckInterval,
		MinRunning:     cfg.JobHealthMinRunning,
		TimeoutDefault: cfg.JobTimeoutDefault,
		TimeoutBuild:   cfg.JobTimeoutBuild,
	})

	revivalDetector := revival.NewDetector(branchCoord, cfg.RevivalCooldown)

	orch := orchestrator.New(store, workers, monitor, revivalDetector, branchCoord)

	recoverStuckOnStartup(ctx, store, cfg.Projects)

	adminAddr := getEnv("ORCHESTRATOR_ADMIN_ADDR", ":8081")
	adminSrv := adminhttp.New(orch)
	go func() {
		if err := adminSrv.ListenAndServe(ctx, adminAddr); err != nil {
			slog.Error("orchestratord: admin http server exited", "err", err)
		}
	}()

	slog.Info("orchestratord: running", "projects", len(cfg.Projects), "admin_addr", adminAddr)
	orch.Run(ctx)
	slog.Info("orchestratord: shutting down")
}

// newProvider builds a genai.Provider from a "provider/model" or bare
// provider-name string, the same shape the teacher's title generator reads
// from its own config strings. Returns nil (meaning "unconfigured, skip
// this LLM call") on any empty or unresolvable input.
func newProvider(ctx context.Context, spec string) genai.Provider {
	if spec == "" {
		return nil
	}
	name, model, _ := splitProviderModel(spec)
	cfg, ok := providers.All[name]
	if !ok || cfg.Factory == nil {
		slog.Warn("orchestratord: unknown LLM provider", "provider", name)
		return nil
	}
	var opts []genai.ProviderOption
	if model != "" {
		opts = append(opts, genai.ProviderOptionModel(model))
	} else {
		opts = append(opts, genai.ModelCheap)
	}
	p, err := cfg.Factory(ctx, opts...)
	if err != nil {
		slog.Warn("orchestratord: failed to create LLM provider", "provider", name, "err", err)
		return nil
	}
	return p
}

func splitProviderModel(spec string) (provider, model string, hasModel bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '/' {
			return spec[:i], spec[i+1:], true
		}
	}
	return spec, "", false
}

// recoverStuckOnStartup implements spec.md §6's "reset_running ... used on
// startup": any job a prior process left `running` when it died is demoted
// back to `pending` at high priority before workers start popping. Each
// project's reset is an independent Redis round trip, fanned out with a
// bounded concurrency limit rather than a plain loop, the way SPEC_FULL's
// concurrency model calls for bounding concurrent store/git calls.
func recoverStuckOnStartup(ctx context.Context, store jobstore.Store, projects map[string]string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for projectKey := range projects {
		g.Go(func() error {
			n, err := store.RecoverInterrupted(gctx, projectKey)
			if err != nil {
				slog.Warn("orchestratord: startup recovery failed", "project", projectKey, "err", err)
				return nil
			}
			if n > 0 {
				slog.Info("orchestratord: recovered jobs orphaned by a prior crash", "project", projectKey, "count", n)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// staticAgentEnv returns an AgentEnv func that always reports the same
// key, for the common case where ANTHROPIC_API_KEY is set once via the
// environment and never rotates.
func staticAgentEnv(apiKey string) func() map[string]string {
	env := map[string]string{"ANTHROPIC_API_KEY": apiKey}
	return func() map[string]string { return env }
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// logSender and logReactor stand in for the chat bridge this process
// doesn't implement (spec.md §1 Non-goals). A real deployment wires
// cmd/orchestratord to a bridge process's Sender/Reactor over whatever
// transport it uses; until one is attached, job results are logged instead
// of lost to a nil call.
type logSender struct{}

func (logSender) Send(_ context.Context, chatID int64, text string, replyToMsgID int64) error {
	slog.Info("bridge: send (no bridge attached)", "chat", chatID, "reply_to", replyToMsgID, "text", text)
	return nil
}

type logReactor struct{}

func (logReactor) SetReaction(_ context.Context, chatID, msgID int64, emoji string) error {
	slog.Info("bridge: react (no bridge attached)", "chat", chatID, "msg", msgID, "emoji", emoji)
	return nil
}

type logResponder struct{}

func (logResponder) RespondWithFiles(_ context.Context, chatID, msgID int64, text string, filePaths []string) error {
	slog.Info("bridge: respond with files (no bridge attached)", "chat", chatID, "msg", msgID, "text", text, "files", filePaths)
	return nil
}
