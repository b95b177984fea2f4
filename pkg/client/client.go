package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// Client talks to one hashtrail server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the server at baseURL. A missing scheme defaults
// to http.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hashtrail: %d %s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("hashtrail: %d: %s", e.StatusCode, e.Detail)
}

// Unwrap exposes the error class so errors.Is matches errclass sentinels.
func (e *APIError) Unwrap() error {
	if e.Code == "" {
		return nil
	}
	return &errclass.Error{Code: e.Code, Message: e.Detail}
}

// HealthReport is the /health body.
type HealthReport struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Port       string `json:"port"`
	Version    string `json:"version"`
	Blockchain struct {
		Valid      bool `json:"valid"`
		BlockCount int  `json:"block_count"`
	} `json:"blockchain"`
	Config struct {
		MaxFileSize string `json:"max_file_size"`
		RateLimit   string `json:"rate_limit"`
	} `json:"config"`
}

// HashReceipt is the /hash body.
type HashReceipt struct {
	Status     string          `json:"status"`
	Filename   string          `json:"filename"`
	Hash       model.HashValue `json:"hash"`
	BlockHash  model.HashValue `json:"block_hash"`
	BlockIndex int             `json:"block_index"`
	Timestamp  string          `json:"timestamp"`
}

// VerifyReceipt is the /verify body.
type VerifyReceipt struct {
	Status      string          `json:"status"`
	Filename    string          `json:"filename"`
	CurrentHash model.HashValue `json:"current_hash"`
	StoredHash  string          `json:"stored_hash"`
	BlockHash   model.HashValue `json:"block_hash"`
	BlockIndex  int             `json:"block_index"`
	Timestamp   string          `json:"timestamp"`
	Message     string          `json:"message"`
}

// ChainLog is the /blockchain-log body. Blocks are newest first.
type ChainLog struct {
	Status              string        `json:"status"`
	BlockCount          int           `json:"block_count"`
	ChainValidityStatus string        `json:"chain_validity_status"`
	Blocks              []model.Block `json:"blocks"`
}

// ChainVerdict is the /validate-chain body.
type ChainVerdict struct {
	Valid        bool `json:"valid"`
	InvalidBlock *int `json:"invalid_block"`
}

// HashCheck is the /verify/hash body.
type HashCheck struct {
	Valid          bool            `json:"is_valid"`
	CalculatedHash model.HashValue `json:"calculated_hash"`
	ProvidedHash   string          `json:"provided_hash"`
	Algorithm      string          `json:"algorithm"`
}

// Health fetches the health report.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	var out HealthReport
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Live checks that the server process answers.
func (c *Client) Live(ctx context.Context) error {
	var out map[string]any
	return c.get(ctx, "/health/live", &out)
}

// Log fetches the chain, newest block first.
func (c *Client) Log(ctx context.Context) (*ChainLog, error) {
	var out ChainLog
	if err := c.get(ctx, "/blockchain-log", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateChain asks the server to validate its chain.
func (c *Client) ValidateChain(ctx context.Context) (*ChainVerdict, error) {
	var out ChainVerdict
	if err := c.get(ctx, "/validate-chain", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hash uploads r under filename and records a HASH block.
func (c *Client) Hash(ctx context.Context, filename string, r io.Reader) (*HashReceipt, error) {
	var out HashReceipt
	if err := c.upload(ctx, "/hash", "file", filename, r, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HashFile uploads the file at path.
func (c *Client) HashFile(ctx context.Context, path string) (*HashReceipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.Hash(ctx, filepath.Base(path), f)
}

// Verify uploads r and compares it with storedHash, recording a
// VERIFICATION block.
func (c *Client) Verify(ctx context.Context, filename string, r io.Reader, storedHash string) (*VerifyReceipt, error) {
	var out VerifyReceipt
	fields := map[string]string{"stored_hash": storedHash}
	if err := c.upload(ctx, "/verify", "file", filename, r, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyFile verifies the file at path against storedHash.
func (c *Client) VerifyFile(ctx context.Context, path, storedHash string) (*VerifyReceipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.Verify(ctx, filepath.Base(path), f, storedHash)
}

// VerifyHash checks data against hash with the named algorithm without
// recording anything.
func (c *Client) VerifyHash(ctx context.Context, data, hash, algorithm string) (*HashCheck, error) {
	form := url.Values{"data": {data}, "hash_value": {hash}}
	if algorithm != "" {
		form.Set("algorithm", algorithm)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify/hash", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out HashCheck
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

// upload streams a multipart body through a pipe. Fields are written first
// so the server sees them before the file.
func (c *Client) upload(ctx context.Context, path, fileField, filename string, r io.Reader, fields map[string]string, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			for k, v := range fields {
				if err := mw.WriteField(k, v); err != nil {
					return err
				}
			}
			fw, err := mw.CreateFormFile(fileField, filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(fw, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = c.do(req, out)
	pr.Close()
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
		Code   string `json:"code"`
		Error  string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Detail = body.Detail
		if apiErr.Detail == "" {
			apiErr.Detail = body.Error
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
