package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caic-xyz/orchestrator/internal/steering"
	"github.com/maruel/genai"
)

// Decision is the value a PostToolUseHook returns after observing one tool
// call (spec.md §4.4).
type Decision struct {
	Continue   bool
	StopReason string
}

// continueDecision is the zero-cost "nothing to do" result.
var continueDecision = Decision{Continue: true}

// PostToolUseHook fires after every tool call the agent makes. toolCount is
// the 1-based count of tool calls observed so far in this session,
// maintained by the caller (spec.md §4.4).
type PostToolUseHook func(ctx context.Context, session *Session, toolCount int, transcriptTail string) Decision

// Judge asks a fast model whether recent agent activity looks healthy. It is
// satisfied by a genai.Provider-backed implementation (see NewJudge) or a
// stub for tests.
type Judge interface {
	Judge(ctx context.Context, activity string) (healthy bool, reason string, err error)
}

// genaiJudge adapts a genai.Provider into a Judge, grounded on the teacher's
// titleGenerator no-op-when-unconfigured pattern in server/titlegen.go.
type genaiJudge struct {
	provider genai.Provider
}

// NewJudge builds a Judge from a configured genai provider. Passing a nil
// provider yields a Judge that always reports healthy (fail-open).
func NewJudge(provider genai.Provider) Judge {
	return &genaiJudge{provider: provider}
}

const judgeSystemPrompt = `You are a watchdog monitoring an AI coding agent session. Based on the ` +
	`recent activity log, determine if the agent is making meaningful progress, stuck in a ` +
	`repetitive loop, or exploring without converging. Respond with ONLY a JSON object: ` +
	`{"healthy": true/false, "reason": "brief explanation"}`

func (j *genaiJudge) Judge(ctx context.Context, activity string) (bool, string, error) {
	if j.provider == nil {
		return true, "no judge configured", nil
	}
	res, err := j.provider.GenSync(ctx,
		genai.Messages{genai.NewTextMessage(activity)},
		&genai.GenOptionText{
			SystemPrompt: judgeSystemPrompt,
			MaxTokens:    150,
			Temperature:  0,
		},
	)
	if err != nil {
		return true, "", fmt.Errorf("judge call: %w", err)
	}
	var parsed struct {
		Healthy bool   `json:"healthy"`
		Reason  string `json:"reason"`
	}
	text := strings.TrimSpace(res.String())
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return true, fmt.Sprintf("unparseable judge response: %.80s", text), nil
	}
	return parsed.Healthy, parsed.Reason, nil
}

// HookDeps bundles the dependencies DefaultHook needs: the steering queue
// driving injection, the registry used to look a session back up, and the
// watchdog's judge.
type HookDeps struct {
	Steering   steering.Queue
	Registry   *Registry
	Judge      Judge
	CheckEvery int // watchdog cadence in tool calls; defaults to 20
}

func (d HookDeps) checkEvery() int {
	if d.CheckEvery <= 0 {
		return 20
	}
	return d.CheckEvery
}

// DefaultHook builds the PostToolUseHook spec.md §4.4 describes: steering
// injection first, then a periodic watchdog health judgment.
func DefaultHook(d HookDeps) PostToolUseHook {
	return func(ctx context.Context, session *Session, toolCount int, transcriptTail string) Decision {
		if dec, handled := injectSteering(ctx, d, session); handled {
			return dec
		}
		if toolCount%d.checkEvery() != 0 {
			return continueDecision
		}
		return runWatchdog(ctx, d, session, transcriptTail)
	}
}

// injectSteering drains the session's steering queue and applies it.
// handled is false only when there was nothing to inject, letting the
// caller fall through to the watchdog check.
func injectSteering(ctx context.Context, d HookDeps, session *Session) (Decision, bool) {
	msgs, err := d.Steering.PopAll(ctx, session.SessionID())
	if err != nil {
		slog.Warn("steering: failed to drain queue", "session", session.SessionID(), "err", err)
		return continueDecision, false
	}
	if len(msgs) == 0 {
		return continueDecision, false
	}

	for _, m := range msgs {
		if m.IsAbort {
			return Decision{Continue: false, StopReason: "Aborted: " + m.Text}, true
		}
	}

	prompt := formatSteeringPrompt(msgs)
	if _, ok := d.Registry.Get(session.SessionID()); !ok {
		requeue(ctx, d.Steering, session.SessionID(), msgs)
		slog.Warn("steering: session not registered, re-queued messages", "session", session.SessionID())
		return continueDecision, true
	}
	if err := session.Interrupt(); err != nil {
		requeue(ctx, d.Steering, session.SessionID(), msgs)
		slog.Warn("steering: interrupt failed, re-queued messages", "session", session.SessionID(), "err", err)
		return continueDecision, true
	}
	if err := session.Query(prompt); err != nil {
		requeue(ctx, d.Steering, session.SessionID(), msgs)
		slog.Warn("steering: injection failed, re-queued messages", "session", session.SessionID(), "err", err)
		return continueDecision, true
	}
	return continueDecision, true
}

// formatSteeringPrompt composes pending steering messages into the
// "STEERING MESSAGE"-prefixed prompt spec.md §4.4 requires.
func formatSteeringPrompt(msgs []steering.Message) string {
	var b strings.Builder
	b.WriteString("STEERING MESSAGE")
	for _, m := range msgs {
		b.WriteString("\nFrom ")
		b.WriteString(m.Sender)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// requeue re-pushes steering messages that could not be delivered, in their
// original order, so they are not lost (spec.md §4.4).
func requeue(ctx context.Context, q steering.Queue, sessionID string, msgs []steering.Message) {
	for _, m := range msgs {
		if err := q.Push(ctx, sessionID, m.Text, m.Sender, m.IsAbort); err != nil {
			slog.Error("steering: failed to re-queue message", "session", sessionID, "err", err)
		}
	}
}

// runWatchdog asks the judge whether recent activity looks healthy,
// failing open on any error (spec.md §4.4).
func runWatchdog(ctx context.Context, d HookDeps, session *Session, transcriptTail string) Decision {
	healthy, reason, err := d.Judge.Judge(ctx, transcriptTail)
	if err != nil {
		slog.Error("watchdog: judge call failed, failing open", "session", session.SessionID(), "err", err)
		return continueDecision
	}
	if healthy {
		slog.Info("watchdog: healthy", "session", session.SessionID(), "reason", reason)
		return continueDecision
	}
	slog.Warn("watchdog: unhealthy", "session", session.SessionID(), "reason", reason)
	return Decision{Continue: false, StopReason: "Watchdog: " + reason}
}
