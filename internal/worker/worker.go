// Package worker implements the per-project Worker Loop of spec.md §4.6:
// one serial worker per project_key that pops jobs, checks out the
// session's branch, runs the coding agent, routes its output through the
// Output Pipeline, and finalizes the branch — adapted from the teacher's
// task.Runner, which plays the same role for a single global task list
// instead of a per-project queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/caic-xyz/orchestrator/internal/agentrunner"
	"github.com/caic-xyz/orchestrator/internal/branch"
	"github.com/caic-xyz/orchestrator/internal/bridge"
	"github.com/caic-xyz/orchestrator/internal/jobstore"
	"github.com/caic-xyz/orchestrator/internal/pipeline"
	"github.com/caic-xyz/orchestrator/internal/steering"
)

// Messenger is bound to one chat/message for the lifetime of a single job
// execution; its Send callback routes through the bridge's send callback
// (spec.md §4.6 step 3).
type Messenger struct {
	sender       bridge.Sender
	chatID       int64
	replyToMsgID int64
}

// NewMessenger binds a bridge.Sender to a specific chat and reply target.
func NewMessenger(sender bridge.Sender, chatID, replyToMsgID int64) *Messenger {
	return &Messenger{sender: sender, chatID: chatID, replyToMsgID: replyToMsgID}
}

// Send delivers text to the bound chat.
func (m *Messenger) Send(ctx context.Context, text string) error {
	return m.sender.Send(ctx, m.chatID, text, m.replyToMsgID)
}

// Deps bundles everything a Worker needs to execute jobs for one project.
// A single Deps value is shared by every project's worker; only
// ProjectConfig varies per call.
type Deps struct {
	Store      jobstore.Store
	Steering   steering.Queue
	Branch     *branch.Coordinator
	Backend    agentrunner.Backend
	Registry   *agentrunner.Registry
	Summarizer *pipeline.Summarizer
	Classifier *pipeline.Classifier
	Judge      agentrunner.Judge

	Sender  bridge.Sender
	Reactor bridge.Reactor
	// Responder delivers the Output Pipeline's full-output attachment
	// (spec.md §4.5) when a bridge supports it. May be nil, in which case a
	// summary over the file-attach threshold is delivered as text only.
	Responder bridge.Responder

	// ProjectConfig looks up a project's working directory / auto-merge
	// setting by project_key.
	ProjectConfig func(projectKey string) bridge.ProjectConfig

	// SystemPromptPath is passed through to every agent launch unchanged.
	SystemPromptPath string
	// AgentEnv is called fresh before every agent launch and merged into the
	// subprocess's environment. It's a func rather than a static map so a
	// credential that rotates mid-run (credwatch.Watcher.Env) reaches the
	// next job without restarting the daemon. May be nil.
	AgentEnv func() map[string]string

	MaxAutoContinues    int
	WatchdogEveryNTools int
	IdlePollBackoff     time.Duration
	// PostJobCooldown is the pause between finishing one job and popping the
	// next (spec.md §4.6's "sleep 1s"). Defaults to 1s; tests shrink it.
	PostJobCooldown time.Duration
}

func (d Deps) idlePollBackoff() time.Duration {
	if d.IdlePollBackoff <= 0 {
		return time.Second
	}
	return d.IdlePollBackoff
}

func (d Deps) postJobCooldown() time.Duration {
	if d.PostJobCooldown <= 0 {
		return time.Second
	}
	return d.PostJobCooldown
}

func (d Deps) maxAutoContinues() int {
	if d.MaxAutoContinues <= 0 {
		return pipeline.MaxAutoContinues
	}
	return d.MaxAutoContinues
}

// genericErrorMessage is delivered to the user when a failure has no
// agent-produced error text of its own (spec.md §7).
func genericErrorMessage(err error) string {
	return fmt.Sprintf("I encountered an error: %s", err)
}
