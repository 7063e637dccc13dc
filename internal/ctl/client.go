// Package ctl implements orchestratorctl's cobra subcommands: "status",
// "flush-stuck", and "flush-job <id>" (spec.md §6/§9), talking to a running
// orchestratord over its admin HTTP surface.
package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a thin HTTP client for internal/adminhttp's JSON API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client pointed at baseURL (e.g. "http://localhost:8081").
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// ProjectStats mirrors internal/orchestrator.Stats for decoding the admin
// API's response without importing the orchestrator package into the CLI.
type ProjectStats struct {
	ProjectKey              string   `json:"projectKey"`
	Pending                 int      `json:"pending"`
	Running                 int      `json:"running"`
	WorkerAlive             bool     `json:"workerAlive"`
	OldestRunningAgeSeconds *float64 `json:"oldestRunningAgeSeconds,omitempty"`
}

func (c *Client) ProjectStats(projectKey string) (ProjectStats, error) {
	var out ProjectStats
	err := c.getJSON(fmt.Sprintf("/api/projects/%s/stats", projectKey), &out)
	return out, err
}

func (c *Client) FlushStuck() (int, error) {
	var out struct {
		Recovered int `json:"recovered"`
	}
	err := c.postJSON("/api/flush-stuck", &out)
	return out.Recovered, err
}

func (c *Client) FlushJob(jobID string) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.postJSON(fmt.Sprintf("/api/jobs/%s/flush", jobID), &out)
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.HTTP.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("ctl: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *Client) postJSON(path string, out any) error {
	resp, err := c.HTTP.Post(c.BaseURL+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("ctl: POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("ctl: server returned %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
