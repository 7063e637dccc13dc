// Package config loads orchestrator configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the process-wide tunables named throughout spec.md.
type Config struct {
	RedisAddr string
	RedisDB   int

	// LLMAPIKey is exported to the agent subprocess environment.
	LLMAPIKey       string
	ClassifierModel string
	SummarizerModel string
	WatchdogModel   string

	MaxAutoContinues int

	JobHealthCheckInterval time.Duration
	JobHealthMinRunning    time.Duration
	JobTimeoutDefault      time.Duration
	JobTimeoutBuild        time.Duration

	SummarizeThreshold  int
	FileAttachThreshold int
	MaxSummaryChars     int
	PlatformLimitChars  int

	WatchdogEveryNTools int

	// SystemPromptPath, if set, is passed to every agent launch.
	SystemPromptPath string

	// CredentialsPath, if set, is watched for changes and takes over from
	// LLMAPIKey as the source of ANTHROPIC_API_KEY for agent launches, so a
	// rotated OAuth token reaches new jobs without a daemon restart.
	CredentialsPath string

	RevivalCooldown time.Duration

	GitTimeout            time.Duration
	AgentStartupTimeout   time.Duration
	HTTPTimeout           time.Duration
	WorkerIdlePollBackoff time.Duration

	// Projects maps project_key to its working directory, read from
	// ORCHESTRATOR_PROJECTS as "key=path,key2=path2".
	Projects map[string]string

	// AutoMerge controls whether finished branches are merged to main or
	// parked for review. Per-project overrides are not modeled; a single
	// process-wide default matches spec.md §6's project config shape.
	AutoMerge bool
}

// FromEnv loads configuration from environment variables, applying the
// defaults named in spec.md §4 and §9.
func FromEnv() (*Config, error) {
	c := &Config{
		RedisAddr:              getEnv("ORCHESTRATOR_REDIS_ADDR", "localhost:6379"),
		RedisDB:                getEnvInt("ORCHESTRATOR_REDIS_DB", 0),
		LLMAPIKey:              os.Getenv("ANTHROPIC_API_KEY"),
		ClassifierModel:        getEnv("ORCHESTRATOR_CLASSIFIER_MODEL", ""),
		SummarizerModel:        getEnv("ORCHESTRATOR_SUMMARIZER_MODEL", ""),
		WatchdogModel:          getEnv("ORCHESTRATOR_WATCHDOG_MODEL", ""),
		MaxAutoContinues:       getEnvInt("ORCHESTRATOR_MAX_AUTO_CONTINUES", 3),
		JobHealthCheckInterval: getEnvDuration("ORCHESTRATOR_JOB_HEALTH_CHECK_INTERVAL", 300*time.Second),
		JobHealthMinRunning:    getEnvDuration("ORCHESTRATOR_JOB_HEALTH_MIN_RUNNING", 300*time.Second),
		JobTimeoutDefault:      getEnvDuration("ORCHESTRATOR_JOB_TIMEOUT_DEFAULT", 2700*time.Second),
		JobTimeoutBuild:        getEnvDuration("ORCHESTRATOR_JOB_TIMEOUT_BUILD", 9000*time.Second),
		SummarizeThreshold:     getEnvInt("ORCHESTRATOR_SUMMARIZE_THRESHOLD", 1500),
		FileAttachThreshold:    getEnvInt("ORCHESTRATOR_FILE_ATTACH_THRESHOLD", 3000),
		MaxSummaryChars:        getEnvInt("ORCHESTRATOR_MAX_SUMMARY_CHARS", 2000),
		PlatformLimitChars:     getEnvInt("ORCHESTRATOR_PLATFORM_LIMIT_CHARS", 4096),
		WatchdogEveryNTools:    getEnvInt("ORCHESTRATOR_WATCHDOG_EVERY_N_TOOLS", 20),
		SystemPromptPath:       os.Getenv("ORCHESTRATOR_SYSTEM_PROMPT_PATH"),
		CredentialsPath:        os.Getenv("ORCHESTRATOR_CREDENTIALS_PATH"),
		RevivalCooldown:        getEnvDuration("ORCHESTRATOR_REVIVAL_COOLDOWN", 24*time.Hour),
		GitTimeout:             getEnvDuration("ORCHESTRATOR_GIT_TIMEOUT", 30*time.Second),
		AgentStartupTimeout:    getEnvDuration("ORCHESTRATOR_AGENT_STARTUP_TIMEOUT", time.Hour),
		HTTPTimeout:            getEnvDuration("ORCHESTRATOR_HTTP_TIMEOUT", 20*time.Second),
		WorkerIdlePollBackoff:  getEnvDuration("ORCHESTRATOR_WORKER_IDLE_POLL", time.Second),
		AutoMerge:              getEnvBool("ORCHESTRATOR_AUTO_MERGE", false),
	}

	projects, err := parseProjects(os.Getenv("ORCHESTRATOR_PROJECTS"))
	if err != nil {
		return nil, fmt.Errorf("parse ORCHESTRATOR_PROJECTS: %w", err)
	}
	c.Projects = projects
	return c, nil
}

func parseProjects(raw string) (map[string]string, error) {
	out := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed project entry %q, want key=path", pair)
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			return nil, fmt.Errorf("malformed project entry %q, want key=path", pair)
		}
		out[k] = v
	}
	return out, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
