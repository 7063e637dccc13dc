package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maruel/ksid"
	"github.com/redis/go-redis/v9"
)

// Redis is the crash-safe Store backend of spec.md §4.1. Pending jobs for a
// project live in a sorted set scored so that ZRANGE yields exactly the
// (priority_rank, -created_at) order spec.md §4.1 requires; at most one
// running job per project lives in a plain string key; full job payloads
// are JSON blobs under jobs:data:<job_id>.
//
// Every status transition (Pop, ResetRunning, RecoverInterrupted) is
// implemented as a WATCH/MULTI optimistic transaction: the old index
// entries and data key are removed and a freshly-minted job_id is written
// in the same EXEC, so a stale pending-index entry can never be observed
// alongside the job's running record (spec.md §4.1's index-corruption rule).
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already-constructed client. The caller owns its
// lifecycle (Close).
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Dial creates a *redis.Client and verifies connectivity with Ping,
// matching the construction idiom used for the Steering Queue's client.
func Dial(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func pendingKey(project string) string { return "jobs:pending:" + project }
func runningKey(project string) string { return "jobs:running:" + project }
func dataKey(jobID string) string      { return "jobs:data:" + jobID }

const runningIndexKey = "jobs:running:index"

// score encodes (priority_rank, -created_at) into a single float64 so that
// ZRANGE ascending yields high-priority-first, newest-created_at-first.
func score(p Priority, createdAt float64) float64 {
	return float64(p.rank())*1e15 - createdAt
}

func (r *Redis) Create(ctx context.Context, f CreateFields) (string, error) {
	id := ksid.NewID().String()
	j := Job{
		JobID:             id,
		ProjectKey:        f.ProjectKey,
		Status:            StatusPending,
		Priority:          f.Priority,
		CreatedAt:         Now(),
		SessionID:         f.SessionID,
		WorkingDir:        f.WorkingDir,
		MessageText:       f.MessageText,
		SenderName:        f.SenderName,
		ChatID:            f.ChatID,
		MessageID:         f.MessageID,
		ChatTitle:         f.ChatTitle,
		RevivalContext:    f.RevivalContext,
		AutoContinueCount: f.AutoContinueCount,
		Enrichment:        f.Enrichment,
	}
	payload, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, dataKey(id), payload, 0)
	pipe.ZAdd(ctx, pendingKey(f.ProjectKey), redis.Z{Score: score(f.Priority, j.CreatedAt), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

func (r *Redis) Pop(ctx context.Context, projectKey string) (Job, bool, error) {
	var popped Job
	var found bool

	txf := func(tx *redis.Tx) error {
		found = false
		ids, err := tx.ZRange(ctx, pendingKey(projectKey), 0, 0).Result()
		if err != nil {
			return fmt.Errorf("zrange pending: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		oldID := ids[0]
		raw, err := tx.Get(ctx, dataKey(oldID)).Result()
		if err == redis.Nil {
			// Index points at a payload that's gone; drop the stale index
			// entry and report no job this round rather than fail.
			_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.ZRem(ctx, pendingKey(projectKey), oldID)
				return nil
			})
			return err
		}
		if err != nil {
			return fmt.Errorf("get job data: %w", err)
		}
		var old Job
		if err := json.Unmarshal([]byte(raw), &old); err != nil {
			return fmt.Errorf("unmarshal job data: %w", err)
		}

		next := old.Clone()
		next.JobID = ksid.NewID().String()
		next.Status = StatusRunning
		started := Now()
		next.StartedAt = &started
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, pendingKey(projectKey), oldID)
			p.Del(ctx, dataKey(oldID))
			p.Set(ctx, dataKey(next.JobID), payload, 0)
			p.Set(ctx, runningKey(projectKey), next.JobID, 0)
			p.SAdd(ctx, runningIndexKey, projectKey)
			return nil
		})
		if err != nil {
			return err
		}
		popped = next
		found = true
		return nil
	}

	if err := r.rdb.Watch(ctx, txf, pendingKey(projectKey), runningKey(projectKey)); err != nil {
		return Job{}, false, fmt.Errorf("pop job: %w", err)
	}
	return popped, found, nil
}

func (r *Redis) List(ctx context.Context, projectKey string, status Status) ([]Job, error) {
	switch status {
	case StatusPending:
		ids, err := r.rdb.ZRange(ctx, pendingKey(projectKey), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange pending: %w", err)
		}
		return r.fetchAll(ctx, ids)
	case StatusRunning:
		id, err := r.rdb.Get(ctx, runningKey(projectKey)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get running: %w", err)
		}
		return r.fetchAll(ctx, []string{id})
	default:
		return nil, fmt.Errorf("list: unsupported status %q", status)
	}
}

func (r *Redis) ListRunning(ctx context.Context) ([]Job, error) {
	projects, err := r.rdb.SMembers(ctx, runningIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers running index: %w", err)
	}
	var out []Job
	for _, p := range projects {
		jobs, err := r.List(ctx, p, StatusRunning)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs...)
	}
	return out, nil
}

func (r *Redis) fetchAll(ctx context.Context, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dataKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget jobs: %w", err)
	}
	out := make([]Job, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue // data key evicted/expired underneath a stale index entry
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var j Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			slog.Warn("jobstore: skipping corrupt job record", "job_id", ids[i], "err", err)
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, jobID string) error {
	n, err := r.rdb.Del(ctx, dataKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) ResetRunning(ctx context.Context, projectKey string) (int, error) {
	return r.recover(ctx, projectKey)
}

func (r *Redis) RecoverInterrupted(ctx context.Context, projectKey string) (int, error) {
	return r.recover(ctx, projectKey)
}

// recover demotes the single running job of projectKey (if any) back to
// Pending/High via delete-then-recreate, clearing the running index.
func (r *Redis) recover(ctx context.Context, projectKey string) (int, error) {
	count := 0
	txf := func(tx *redis.Tx) error {
		count = 0
		id, err := tx.Get(ctx, runningKey(projectKey)).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get running: %w", err)
		}
		raw, err := tx.Get(ctx, dataKey(id)).Result()
		if err == redis.Nil {
			_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, runningKey(projectKey))
				p.SRem(ctx, runningIndexKey, projectKey)
				return nil
			})
			return err
		}
		if err != nil {
			return fmt.Errorf("get job data: %w", err)
		}
		var old Job
		if err := json.Unmarshal([]byte(raw), &old); err != nil {
			return fmt.Errorf("unmarshal job data: %w", err)
		}

		next := old.Clone()
		next.JobID = ksid.NewID().String()
		next.Status = StatusPending
		next.Priority = PriorityHigh
		next.StartedAt = nil
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, dataKey(id))
			p.Del(ctx, runningKey(projectKey))
			p.SRem(ctx, runningIndexKey, projectKey)
			p.Set(ctx, dataKey(next.JobID), payload, 0)
			p.ZAdd(ctx, pendingKey(projectKey), redis.Z{Score: score(next.Priority, next.CreatedAt), Member: next.JobID})
			return nil
		})
		if err != nil {
			return err
		}
		count = 1
		return nil
	}

	if err := r.rdb.Watch(ctx, txf, runningKey(projectKey)); err != nil {
		return 0, fmt.Errorf("recover running job: %w", err)
	}
	return count, nil
}

func (r *Redis) Len(ctx context.Context, projectKey string) (int, error) {
	pending, err := r.rdb.ZCard(ctx, pendingKey(projectKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard pending: %w", err)
	}
	exists, err := r.rdb.Exists(ctx, runningKey(projectKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("exists running: %w", err)
	}
	return int(pending) + int(exists), nil
}

// sortByPopOrder sorts jobs by the same (priority_rank, -created_at) score
// ZRANGE uses, for tests that assert pop ordering without a live Redis.
func sortByPopOrder(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		si := score(jobs[i].Priority, jobs[i].CreatedAt)
		sk := score(jobs[k].Priority, jobs[k].CreatedAt)
		return si < sk
	})
}
