package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/caic-xyz/orchestrator/internal/agentrunner"
	"github.com/caic-xyz/orchestrator/internal/branch"
	"github.com/caic-xyz/orchestrator/internal/bridge"
	"github.com/caic-xyz/orchestrator/internal/gitutil"
	"github.com/caic-xyz/orchestrator/internal/jobstore"
	"github.com/caic-xyz/orchestrator/internal/pipeline"
	"github.com/caic-xyz/orchestrator/internal/revival"
)

// errNoResult is reported when the agent subprocess's msgCh closed without
// ever producing a ResultMessage (e.g. it crashed before finishing a turn).
var errNoResult = errors.New("worker: agent subprocess exited without a result message")

// handle tracks one project's running worker goroutine.
type handle struct {
	done chan struct{}
}

func (h *handle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Manager owns the project_key -> worker_handle registry of spec.md §4.6
// and lazily starts a worker the first time a project with no live worker
// gets a job.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	workers map[string]*handle
}

// NewManager builds a Manager bound to deps.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, workers: make(map[string]*handle)}
}

// EnsureStarted launches projectKey's worker loop if none is currently
// running. Safe to call on every enqueue, per spec.md §4.6's lifecycle.
func (m *Manager) EnsureStarted(ctx context.Context, projectKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.workers[projectKey]; ok && h.alive() {
		return
	}
	h := &handle{done: make(chan struct{})}
	m.workers[projectKey] = h
	go m.runLoop(ctx, projectKey, h)
}

// IsAlive reports whether projectKey currently has a running worker
// goroutine, used by the Health Monitor's dead-worker detection.
func (m *Manager) IsAlive(projectKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.workers[projectKey]
	return ok && h.alive()
}

// runLoop implements spec.md §4.6's worker loop pseudocode, including the
// second-pop drain guard.
func (m *Manager) runLoop(ctx context.Context, projectKey string, h *handle) {
	defer close(h.done)
	for {
		job, ok, err := m.deps.Store.Pop(ctx, projectKey)
		if err != nil {
			slog.Error("worker: pop failed, exiting", "project", projectKey, "err", err)
			return
		}
		if !ok {
			time.Sleep(m.deps.idlePollBackoff())
			job, ok, err = m.deps.Store.Pop(ctx, projectKey)
			if err != nil {
				slog.Error("worker: pop failed on drain guard, exiting", "project", projectKey, "err", err)
				return
			}
			if !ok {
				slog.Info("worker: queue drained, exiting", "project", projectKey)
				return
			}
		}

		m.execute(ctx, projectKey, job)

		if err := m.deps.Store.Delete(ctx, job.JobID); err != nil {
			slog.Error("worker: failed to delete finished job", "project", projectKey, "job", job.JobID, "err", err)
		}
		time.Sleep(m.deps.postJobCooldown())
	}
}

// execute runs the seven steps of spec.md §4.6's execute(job).
func (m *Manager) execute(ctx context.Context, projectKey string, job jobstore.Job) {
	cfg := m.deps.ProjectConfig(projectKey)
	branchName := branch.SessionBranchName(job.SessionID)

	if _, err := m.deps.Branch.CheckoutSessionBranch(ctx, job.WorkingDir, branchName); err != nil {
		slog.Warn("worker: checkout session branch failed, continuing on current branch", "project", projectKey, "session", job.SessionID, "err", err)
	}

	messenger := NewMessenger(m.deps.Sender, job.ChatID, job.MessageID)

	completionSent := m.runAgentJob(ctx, projectKey, job, messenger)

	leftover, err := m.deps.Steering.PopAll(ctx, job.SessionID)
	if err != nil {
		slog.Warn("worker: failed to drain steering queue after job", "session", job.SessionID, "err", err)
	}
	if note := revival.MergeMissedSteering(leftover); note != "" {
		slog.Warn("worker: steering messages never delivered, surfacing as a catch-up note", "session", job.SessionID, "count", len(leftover))
		if !completionSent.deferred {
			if err := messenger.Send(ctx, note); err != nil {
				slog.Warn("worker: failed to deliver missed-steering catch-up note", "session", job.SessionID, "err", err)
			}
		}
	}

	if !completionSent.deferred {
		emoji := bridge.ReactionTrophy
		if completionSent.failed {
			emoji = bridge.ReactionError
		}
		if err := m.deps.Reactor.SetReaction(ctx, job.ChatID, job.MessageID, emoji); err != nil {
			slog.Warn("worker: failed to set reaction", "chat", job.ChatID, "msg", job.MessageID, "err", err)
		}
	}

	merged, err := m.deps.Branch.FinishBranch(ctx, job.WorkingDir, branchName, cfg.AutoMerge)
	if err != nil {
		slog.Warn("worker: finish branch failed", "project", projectKey, "session", job.SessionID, "err", err)
	} else if cfg.AutoMerge && !merged {
		slog.Warn("worker: branch did not merge, left for human review", "project", projectKey, "session", job.SessionID, "branch", branchName)
	}
}

// jobOutcome records how step 4 of execute() resolved, so step 6 knows
// whether to skip the reaction (auto-continue defers it) and which emoji
// to use otherwise.
type jobOutcome struct {
	deferred bool
	failed   bool
}

// runAgentJob implements spec.md §4.6 step 4: spawn the agent, route its
// terminal output through the Output Pipeline, and enqueue a continuation
// job when the pipeline chooses to auto-continue.
func (m *Manager) runAgentJob(ctx context.Context, projectKey string, job jobstore.Job, messenger *Messenger) jobOutcome {
	msgCh := make(chan agentrunner.Message, 32)
	var agentEnv map[string]string
	if m.deps.AgentEnv != nil {
		agentEnv = m.deps.AgentEnv()
	}
	opts := agentrunner.Options{
		SystemPromptPath: m.deps.SystemPromptPath,
		WorkingDir:       job.WorkingDir,
		SessionID:        job.SessionID,
		Env:              agentEnv,
		Prompt:           job.MessageText,
		Hook: agentrunner.DefaultHook(agentrunner.HookDeps{
			Steering:   m.deps.Steering,
			Registry:   m.deps.Registry,
			Judge:      m.deps.Judge,
			CheckEvery: m.deps.WatchdogEveryNTools,
		}),
	}

	sess, err := agentrunner.Run(ctx, m.deps.Backend, opts, m.deps.Registry, msgCh)
	if err != nil {
		slog.Error("worker: failed to start agent", "project", projectKey, "session", job.SessionID, "err", err)
		if sendErr := messenger.Send(ctx, genericErrorMessage(err)); sendErr != nil {
			slog.Error("worker: failed to deliver start-failure message", "err", sendErr)
		}
		return jobOutcome{failed: true}
	}
	defer m.deps.Registry.Delete(sess.SessionID())

	for range msgCh {
		// AssistantMessage content streams through the hook inside the
		// backend itself (spec.md §4.4); the worker only needs the
		// terminal ResultMessage, consumed via Wait() below.
	}

	result, err := sess.Wait()
	if err != nil {
		slog.Error("worker: agent run failed", "project", projectKey, "session", job.SessionID, "err", err)
		if sendErr := messenger.Send(ctx, genericErrorMessage(err)); sendErr != nil {
			slog.Error("worker: failed to deliver run-failure message", "err", sendErr)
		}
		return jobOutcome{failed: true}
	}
	if result == nil {
		slog.Error("worker: agent produced no result message", "project", projectKey, "session", job.SessionID)
		if sendErr := messenger.Send(ctx, genericErrorMessage(errNoResult)); sendErr != nil {
			slog.Error("worker: failed to deliver missing-result message", "err", sendErr)
		}
		return jobOutcome{failed: true}
	}

	if result.StopReason != "" {
		// The hook asked the agent to stop and it exited before producing its
		// own result line (claude.Backend.Start's synthesized ResultMessage).
		// This is a deliberate abort, not a crash: deliver whatever partial
		// output exists and skip auto-continue, matching a normal completion.
		text := result.Result
		if text == "" {
			text = "Stopped: " + result.StopReason
		}
		if err := messenger.Send(ctx, text); err != nil {
			slog.Error("worker: failed to deliver aborted-job message", "err", err)
		}
		return jobOutcome{}
	}

	if result.IsError {
		text := result.Result
		if text == "" {
			text = "the agent reported an error with no further detail"
		}
		if err := messenger.Send(ctx, text); err != nil {
			slog.Error("worker: failed to deliver agent error text", "err", err)
		}
		return jobOutcome{failed: true}
	}

	summary := m.deps.Summarizer.Summarize(ctx, result.Result)
	m.attachDiffStat(ctx, job.WorkingDir, &summary.Artifacts)
	classification, err := m.deps.Classifier.Classify(ctx, summary.Text, summary.Artifacts)
	if err != nil {
		slog.Error("worker: classification failed, delivering raw summary", "project", projectKey, "session", job.SessionID, "err", err)
		if sendErr := messenger.Send(ctx, summary.Text); sendErr != nil {
			slog.Error("worker: failed to deliver summary after classify failure", "err", sendErr)
		}
		m.attachFullOutput(ctx, job, summary)
		return jobOutcome{}
	}

	planFile := m.activePlanFile(ctx, job.WorkingDir)
	decision := pipeline.Decide(classification, job.AutoContinueCount, planFile, job.MessageText)

	if decision.Action == pipeline.ActionAutoContinue {
		if _, err := m.deps.Store.Create(ctx, jobstore.CreateFields{
			ProjectKey:        projectKey,
			Priority:          jobstore.PriorityLow,
			SessionID:         job.SessionID,
			WorkingDir:        job.WorkingDir,
			MessageText:       decision.ContinuationPrompt,
			SenderName:        job.SenderName,
			ChatID:            job.ChatID,
			MessageID:         job.MessageID,
			ChatTitle:         job.ChatTitle,
			AutoContinueCount: job.AutoContinueCount + 1,
			Enrichment:        job.Enrichment,
		}); err != nil {
			slog.Error("worker: failed to enqueue auto-continue job", "project", projectKey, "session", job.SessionID, "err", err)
		}
		return jobOutcome{deferred: true}
	}

	if err := messenger.Send(ctx, summary.Text); err != nil {
		slog.Error("worker: failed to deliver summary", "err", err)
	}
	m.attachFullOutput(ctx, job, summary)
	return jobOutcome{failed: classification.OutputType == pipeline.OutputError}
}

// attachFullOutput delivers the Output Pipeline's full-output file
// (spec.md §4.5: "write the full output to a temp file for attachment") when
// the summarizer produced one and the bridge supports file responses.
func (m *Manager) attachFullOutput(ctx context.Context, job jobstore.Job, summary pipeline.Result) {
	if m.deps.Responder == nil || summary.FullOutputPath == "" {
		return
	}
	if err := m.deps.Responder.RespondWithFiles(ctx, job.ChatID, job.MessageID, summary.Text, []string{summary.FullOutputPath}); err != nil {
		slog.Warn("worker: failed to deliver full-output attachment", "project", job.ProjectKey, "session", job.SessionID, "err", err)
	}
}

// activePlanFile looks up the working directory's active plan path, if
// any, for the coaching message builder (spec.md §4.5).
func (m *Manager) activePlanFile(ctx context.Context, workingDir string) string {
	state, err := m.deps.Branch.GetState(ctx, workingDir)
	if err != nil {
		slog.Warn("worker: failed to read branch state for coaching", "dir", workingDir, "err", err)
		return ""
	}
	return state.ActivePlan
}

// attachDiffStat merges real `git diff --numstat` paths into the
// summarizer's regex-scraped FilesChanged list, so a completion message
// lists every file the agent actually touched even when it never mentioned
// one by name. Best-effort: a diff failure (e.g. working dir isn't a repo
// yet) leaves the regex-derived list untouched.
func (m *Manager) attachDiffStat(ctx context.Context, workingDir string, artifacts *pipeline.Artifacts) {
	stats, err := gitutil.DiffStat(ctx, workingDir)
	if err != nil {
		slog.Warn("worker: failed to compute diff stat", "dir", workingDir, "err", err)
		return
	}
	seen := make(map[string]bool, len(artifacts.FilesChanged))
	for _, f := range artifacts.FilesChanged {
		seen[f] = true
	}
	for _, s := range stats {
		if seen[s.Path] {
			continue
		}
		seen[s.Path] = true
		artifacts.FilesChanged = append(artifacts.FilesChanged, s.Path)
	}
}
