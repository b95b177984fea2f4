package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/internal/ratelimit"
	"github.com/hashtrail-project/hashtrail/internal/server"
	"github.com/hashtrail-project/hashtrail/internal/verify"
	"github.com/hashtrail-project/hashtrail/pkg/client"
	"github.com/hashtrail-project/hashtrail/pkg/config"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/logging"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.SetGlobal(logging.NewLogger(logging.LevelError))
	os.Exit(m.Run())
}

func startServer(t *testing.T, lim ratelimit.Limiter) (*client.Client, *chain.Recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Limits.MaxFileSizeMB = 1
	rec := chain.NewRecorder()
	ts := httptest.NewServer(server.New(cfg, rec, server.WithLimiter(lim), server.WithVersion("test")).Handler())
	t.Cleanup(ts.Close)
	return client.New(ts.URL, client.WithTimeout(5*time.Second)), rec
}

func TestNew_NormalizesBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", client.New("localhost:8000/").BaseURL())
	assert.Equal(t, "https://example.com", client.New(" https://example.com ").BaseURL())
}

func TestClient_HashVerifyRoundTrip(t *testing.T) {
	c, rec := startServer(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("test"), 0644))

	receipt, err := c.HashFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "success", receipt.Status)
	assert.Equal(t, "test.txt", receipt.Filename)
	assert.Equal(t, integrity.Digest([]byte("test")), receipt.Hash)
	assert.Equal(t, 1, receipt.BlockIndex)

	res, err := c.VerifyFile(ctx, path, string(receipt.Hash))
	require.NoError(t, err)
	assert.Equal(t, "valid", res.Status)
	assert.Equal(t, 2, res.BlockIndex)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0644))
	res, err = c.VerifyFile(ctx, path, string(receipt.Hash))
	require.NoError(t, err)
	assert.Equal(t, "invalid", res.Status)

	assert.Equal(t, 4, rec.Chain().Len())
}

func TestClient_LogAndValidate(t *testing.T) {
	c, _ := startServer(t, nil)
	ctx := context.Background()

	_, err := c.Hash(ctx, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	log, err := c.Log(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, log.BlockCount)
	assert.Equal(t, "valid", log.ChainValidityStatus)
	require.Len(t, log.Blocks, 2)
	assert.Equal(t, 1, log.Blocks[0].Index)

	assert.True(t, verify.Validate(reverse(log.Blocks)).Valid, "served blocks validate locally")

	verdict, err := c.ValidateChain(ctx)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Nil(t, verdict.InvalidBlock)
}

func reverse(blocks []model.Block) []model.Block {
	out := make([]model.Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

func TestClient_HealthAndLive(t *testing.T) {
	c, _ := startServer(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Live(ctx))
	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "test", h.Version)
	assert.Equal(t, 1, h.Blockchain.BlockCount)
	assert.Equal(t, "1", h.Config.MaxFileSize)
}

func TestClient_VerifyHash(t *testing.T) {
	c, _ := startServer(t, nil)
	res, err := c.VerifyHash(context.Background(), "Hello World", "b10a8db164e0754105b7a99be72e3fe5", "md5")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	_, err = c.VerifyHash(context.Background(), "x", "y", "whirlpool")
	assert.ErrorIs(t, err, errclass.ErrAlgorithmUnsupported)
}

func TestClient_ErrorsMatchClasses(t *testing.T) {
	c, _ := startServer(t, ratelimit.NewMemory(1, time.Minute))
	ctx := context.Background()

	_, err := c.Hash(ctx, "big.bin", bytes.NewReader(bytes.Repeat([]byte("x"), 1<<20+1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrPayloadTooLarge)

	_, err = c.Hash(ctx, "a.txt", strings.NewReader("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrRateLimited)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Positive(t, apiErr.RetryAfter)
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := client.New(ts.URL).ValidateChain(context.Background())
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Detail)
	assert.Empty(t, apiErr.Code)
}

func TestClient_MissingFile(t *testing.T) {
	c := client.New("http://127.0.0.1:1")
	_, err := c.HashFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
