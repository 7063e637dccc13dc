// Package revival implements the Revival Detector of spec.md §4.8: on
// restart (or any time a chat becomes active again), it notices unfinished
// session branches or in-progress working directories and offers to
// resume, subject to a cooldown so the same chat isn't re-prompted
// repeatedly.
package revival

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caic-xyz/orchestrator/internal/branch"
	"github.com/caic-xyz/orchestrator/internal/steering"
)

// planPreviewChars bounds the active plan excerpt spec.md §4.8 attaches to
// a RevivalInfo.
const planPreviewChars = 200

// Info is what spec.md §4.8's check_revival returns when there is
// unfinished work worth surfacing.
type Info struct {
	ProjectKey        string
	WorkingDir        string
	FirstSessionBranch string
	Branches          []string
	Uncommitted       bool
	PlanPreview       string
}

// NotificationKey identifies one revival prompt sent to a chat, so a later
// reaction/reply event can be correlated back to it.
type NotificationKey struct {
	ChatID    int64
	MessageID int64
}

// NotificationRecord is what a NotificationKey resolves to (spec.md §4.8:
// "(chat_id, msg_id) -> {session_id, branch, project_key, working_dir}").
type NotificationRecord struct {
	SessionID  string
	Branch     string
	ProjectKey string
	WorkingDir string
}

// Detector implements spec.md §4.8's check_revival plus its cooldown map
// and notification-correlation table.
type Detector struct {
	Branch   *branch.Coordinator
	Cooldown time.Duration // defaults to 24h

	// now is overridden in tests; defaults to time.Now.
	now func() time.Time

	mu            sync.Mutex
	lastNotified  map[string]time.Time
	notifications map[NotificationKey]NotificationRecord
}

// NewDetector builds a Detector. cooldown <= 0 defaults to 24h.
func NewDetector(coord *branch.Coordinator, cooldown time.Duration) *Detector {
	return &Detector{
		Branch:        coord,
		Cooldown:      cooldown,
		now:           time.Now,
		lastNotified:  make(map[string]time.Time),
		notifications: make(map[NotificationKey]NotificationRecord),
	}
}

func (d *Detector) cooldown() time.Duration {
	if d.Cooldown <= 0 {
		return 24 * time.Hour
	}
	return d.Cooldown
}

func cooldownKey(projectKey string, chatID int64) string {
	return fmt.Sprintf("%s:%d", projectKey, chatID)
}

// CheckRevival implements spec.md §4.8's algorithm, returning nil when
// there is nothing to revive or the chat was notified within the cooldown.
func (d *Detector) CheckRevival(ctx context.Context, projectKey, workingDir string, chatID int64) (*Info, error) {
	d.mu.Lock()
	last, notified := d.lastNotified[cooldownKey(projectKey, chatID)]
	d.mu.Unlock()
	if notified && d.now().Sub(last) < d.cooldown() {
		return nil, nil
	}

	branches, err := d.Branch.ListSessionBranches(ctx, workingDir)
	if err != nil {
		return nil, fmt.Errorf("revival: list session branches: %w", err)
	}
	sort.Strings(branches)

	state, err := d.Branch.GetState(ctx, workingDir)
	if err != nil {
		return nil, fmt.Errorf("revival: get state: %w", err)
	}

	if len(branches) == 0 && state.WorkStatus != branch.WorkInProgress {
		return nil, nil
	}

	var first string
	if len(branches) > 0 {
		first = branches[0]
	}

	return &Info{
		ProjectKey:         projectKey,
		WorkingDir:         workingDir,
		FirstSessionBranch: first,
		Branches:           branches,
		Uncommitted:        state.HasUncommittedChanges,
		PlanPreview:        planPreview(state.ActivePlan),
	}, nil
}

// planPreview reads up to planPreviewChars of planFile's content. A
// missing or empty path degrades to "" rather than erroring, matching the
// Branch Coordinator's own "best effort" stance on plan-file I/O.
func planPreview(planFile string) string {
	if planFile == "" {
		return ""
	}
	data, err := os.ReadFile(planFile)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > planPreviewChars {
		return s[:planPreviewChars]
	}
	return s
}

// RecordNotification marks chatID as notified (resetting its cooldown) and
// stores the correlation the bridge needs to route a later reaction/reply
// back to a revival job enqueue call.
func (d *Detector) RecordNotification(chatID, messageID int64, info Info, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastNotified[cooldownKey(info.ProjectKey, chatID)] = d.now()
	d.notifications[NotificationKey{ChatID: chatID, MessageID: messageID}] = NotificationRecord{
		SessionID:  sessionID,
		Branch:     info.FirstSessionBranch,
		ProjectKey: info.ProjectKey,
		WorkingDir: info.WorkingDir,
	}
}

// Lookup resolves a prior revival notification by (chat_id, msg_id), for
// correlating a reaction or reply event back to its originating check.
func (d *Detector) Lookup(chatID, messageID int64) (NotificationRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.notifications[NotificationKey{ChatID: chatID, MessageID: messageID}]
	return rec, ok
}

// missedSteeringPreview bounds how many of the most recent missed messages
// MergeMissedSteering quotes, matching missed_message_manager.py's
// "show last 3 messages for context" behavior.
const missedSteeringPreview = 3

// MergeMissedSteering folds steering messages left queued for a session that
// went unattended (e.g. a worker crashed mid-run and the messages were never
// drained into a live hook) into a single catch-up note, so a session that
// resumes surfaces what it missed instead of the messages being silently
// dropped. Grounded on missed_message_manager.py's
// _create_missed_message_summary, adapted from Telegram history replay to
// this system's steering queue.
func MergeMissedSteering(msgs []steering.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	if len(msgs) == 1 {
		return "While this session was unattended, it missed one message: " + msgs[0].Text
	}
	recent := msgs
	if len(recent) > missedSteeringPreview {
		recent = recent[len(recent)-missedSteeringPreview:]
	}
	texts := make([]string, len(recent))
	for i, m := range recent {
		texts[i] = m.Text
	}
	return fmt.Sprintf("While this session was unattended, it missed %d messages. Recent: %s",
		len(msgs), strings.Join(texts, "; "))
}
