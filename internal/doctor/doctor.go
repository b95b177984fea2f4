// Package doctor probes a running hashtrail server and checks chain files.
package doctor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/hashtrail-project/hashtrail/internal/audit"
	"github.com/hashtrail-project/hashtrail/internal/verify"
	"github.com/hashtrail-project/hashtrail/pkg/client"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Checks   []Check   `json:"checks,omitempty"`
	Findings []Finding `json:"findings"`
}

// Check is one smoke test against the server.
type Check struct {
	Description string `json:"description"`
	Method      string `json:"method"`
	Endpoint    string `json:"endpoint"`
	Passed      bool   `json:"passed"`
	Error       string `json:"error,omitempty"`
}

// HealthReport is the outcome of a health probe.
type HealthReport struct {
	Timestamp       string `json:"timestamp"`
	URL             string `json:"url"`
	Success         bool   `json:"success"`
	Status          string `json:"status"`
	BlockchainValid bool   `json:"blockchain_valid"`
	BlockCount      int    `json:"block_count"`
	Port            string `json:"port"`
	Version         string `json:"version"`
	Error           string `json:"error,omitempty"`
}

// Doctor runs checks against one server.
type Doctor struct {
	client  *client.Client
	timeout time.Duration
	now     func() time.Time
}

// NewDoctor creates a doctor for the server at baseURL.
func NewDoctor(baseURL string, timeout time.Duration) *Doctor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Doctor{
		client:  client.New(baseURL, client.WithTimeout(timeout)),
		timeout: timeout,
		now:     time.Now,
	}
}

// URL returns the server URL being checked.
func (d *Doctor) URL() string {
	return d.client.BaseURL()
}

// Health probes the port, then /health. It reports healthy only when the
// server answers and its chain is valid.
func (d *Doctor) Health(ctx context.Context) (*HealthReport, bool) {
	report := &HealthReport{
		Timestamp: d.now().UTC().Format(time.RFC3339),
		URL:       d.client.BaseURL(),
		Status:    "unknown",
		Port:      "unknown",
		Version:   "unknown",
	}

	if err := d.Reachable(ctx); err != nil {
		report.Error = err.Error()
		return report, false
	}

	h, err := d.client.Health(ctx)
	if err != nil {
		report.Error = describe(err, d.timeout)
		return report, false
	}

	report.Success = true
	report.Status = h.Status
	report.BlockchainValid = h.Blockchain.Valid
	report.BlockCount = h.Blockchain.BlockCount
	report.Port = h.Port
	report.Version = h.Version
	return report, h.Blockchain.Valid
}

// Reachable dials the server's TCP port.
func (d *Doctor) Reachable(ctx context.Context) error {
	u, err := url.Parse(d.client.BaseURL())
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connection failed: %s is not reachable", addr)
	}
	return conn.Close()
}

func describe(err error, timeout time.Duration) string {
	var apiErr *client.APIError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("HTTP error: %d - %s", apiErr.StatusCode, apiErr.Detail)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("request timed out after %s", timeout)
	}
	return fmt.Sprintf("request failed: %v", err)
}

// Smoke runs the deployment smoke tests: health, one recorded hash, the
// chain log and a chain validation.
func (d *Doctor) Smoke(ctx context.Context) *Result {
	result := &Result{Healthy: true}

	run := func(desc, method, endpoint string, fn func() error) {
		c := Check{Description: desc, Method: method, Endpoint: endpoint, Passed: true}
		if err := fn(); err != nil {
			c.Passed = false
			c.Error = describe(err, d.timeout)
			result.Healthy = false
		}
		result.Checks = append(result.Checks, c)
	}

	run("Health check endpoint", "GET", "/health", func() error {
		_, err := d.client.Health(ctx)
		return err
	})
	run("File hash calculation", "POST", "/hash", func() error {
		_, err := d.client.Hash(ctx, "test.txt", bytes.NewReader([]byte("test")))
		return err
	})
	run("Blockchain log retrieval", "GET", "/blockchain-log", func() error {
		_, err := d.client.Log(ctx)
		return err
	})
	run("Chain validation", "GET", "/validate-chain", func() error {
		v, err := d.client.ValidateChain(ctx)
		if err != nil {
			return err
		}
		if !v.Valid {
			result.Findings = append(result.Findings, invalidFinding(v.InvalidBlock, "", d.client.BaseURL()))
			return fmt.Errorf("chain invalid at block %s", blockRef(v.InvalidBlock))
		}
		return nil
	})
	return result
}

// CheckChainFile validates an exported chain file. Blocks whose timestamps
// run too far ahead are rejected by checker before validation.
func CheckChainFile(path string, checker audit.TimestampChecker) (*Result, verify.Result, error) {
	blocks, err := audit.ReadFile(path, checker)
	if err != nil {
		return nil, verify.Result{}, err
	}
	result, res := CheckBlocks(blocks, path)
	return result, res, nil
}

// CheckBlocks validates blocks and reports the first break as a finding.
func CheckBlocks(blocks []model.Block, path string) (*Result, verify.Result) {
	result := &Result{Healthy: true}
	res := verify.Validate(blocks)
	if !res.Valid {
		result.Healthy = false
		result.Findings = append(result.Findings, invalidFinding(res.InvalidIndex, res.Reason, path))
	}
	for _, b := range blocks {
		if b.Legacy {
			result.Findings = append(result.Findings, Finding{
				Category:    "chain",
				Description: fmt.Sprintf("block %d uses a legacy shape without block_hash; its header hash cannot be recomputed", b.Index),
				Severity:    "info",
				Path:        path,
			})
		}
	}
	return result, res
}

func invalidFinding(idx *int, reason, path string) Finding {
	desc := fmt.Sprintf("chain broken at block %s", blockRef(idx))
	if reason != "" {
		desc += ": " + reason
	}
	return Finding{Category: "chain", Description: desc, Severity: "critical", Path: path}
}

func blockRef(idx *int) string {
	if idx == nil {
		return "?"
	}
	return fmt.Sprint(*idx)
}
