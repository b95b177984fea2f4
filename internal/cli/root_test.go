package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtrail-project/hashtrail/internal/audit"
	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/internal/server"
	"github.com/hashtrail-project/hashtrail/pkg/color"
	"github.com/hashtrail-project/hashtrail/pkg/config"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/logging"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

const testSHA256 = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.SetGlobal(logging.NewLogger(logging.LevelError))
	color.Disable()
	os.Exit(m.Run())
}

func executeCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func exitCode(err error) int {
	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return -1
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func startServer(t *testing.T) (string, *chain.Recorder) {
	t.Helper()
	rec := chain.NewRecorder()
	ts := httptest.NewServer(server.New(config.Default(), rec, server.WithVersion("test")).Handler())
	t.Cleanup(ts.Close)
	return ts.URL, rec
}

func TestRootCommand_Help(t *testing.T) {
	stdout, err := executeCommand("--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hash chain")
	for _, sub := range []string{"serve", "health", "validate", "hash", "verify", "chain", "config", "version"} {
		assert.Contains(t, stdout, sub)
	}
}

func TestRootCommand_JSONFlag(t *testing.T) {
	_, err := executeCommand("--json", "--help")
	require.NoError(t, err)
	assert.True(t, jsonOutput)

	_, err = executeCommand("--help")
	require.NoError(t, err)
	assert.False(t, jsonOutput, "a fresh root resets the flag")
}

func TestVersionCommand(t *testing.T) {
	stdout, err := executeCommand("version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hashtrail dev")

	stdout, err = executeCommand("--json", "version")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &v))
	assert.Equal(t, "dev", v["version"])
}

func TestHashCommand_Local(t *testing.T) {
	path := writeFile(t, "test.txt", "test")

	stdout, err := executeCommand("hash", path)
	require.NoError(t, err)
	assert.Equal(t, testSHA256+"  "+path+"\n", stdout)

	stdout, err = executeCommand("hash", "-a", "md5", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "098f6bcd4621d373cade4e832627b4f6")

	stdout, err = executeCommand("--json", "hash", path)
	require.NoError(t, err)
	var d localDigest
	require.NoError(t, json.Unmarshal([]byte(stdout), &d))
	assert.Equal(t, model.HashValue(testSHA256), d.Hash)
	assert.Equal(t, "sha256", d.Algorithm)
	assert.Equal(t, int64(4), d.SizeBytes)
}

func TestHashCommand_Errors(t *testing.T) {
	path := writeFile(t, "test.txt", "test")

	_, err := executeCommand("hash", "-a", "whirlpool", path)
	assert.ErrorIs(t, err, errclass.ErrAlgorithmUnsupported)

	_, err = executeCommand("hash", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = executeCommand("hash")
	assert.Error(t, err)
}

func TestVerifyCommand_Local(t *testing.T) {
	path := writeFile(t, "test.txt", "test")

	stdout, err := executeCommand("verify", path, strings.ToUpper(testSHA256))
	require.NoError(t, err)
	assert.Contains(t, stdout, "VALID")

	stdout, err = executeCommand("verify", path, strings.Repeat("0", 64))
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "INVALID")
	assert.Contains(t, stdout, testSHA256)
}

func TestHashAndVerify_Remote(t *testing.T) {
	url, rec := startServer(t)
	path := writeFile(t, "test.txt", "test")

	stdout, err := executeCommand("hash", "--url", url, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, testSHA256+"  test.txt")
	assert.Contains(t, stdout, "Recorded as block 1")

	_, err = executeCommand("verify", "--url", url, path, testSHA256)
	require.NoError(t, err)

	_, err = executeCommand("verify", "--url", url, path, strings.Repeat("a", 64))
	assert.Equal(t, 1, exitCode(err))

	blocks := rec.Chain().Blocks()
	require.Len(t, blocks, 4)
	assert.Equal(t, model.OpHash, blocks[1].Operation)
	assert.Equal(t, model.ResultValid, blocks[2].Result)
	assert.Equal(t, model.ResultInvalid, blocks[3].Result)
}

func TestHealthCommand(t *testing.T) {
	url, _ := startServer(t)

	stdout, err := executeCommand("health", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Health check passed")
	assert.Contains(t, stdout, "healthy")

	stdout, err = executeCommand("--json", "health", "--url", url)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, true, report["success"])
	assert.Equal(t, true, report["blockchain_valid"])
	assert.Equal(t, "test", report["version"])

	stdout, err = executeCommand("health", "-q", "--url", url)
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestHealthCommand_Unreachable(t *testing.T) {
	stdout, err := executeCommand("health", "--url", "http://127.0.0.1:1", "--timeout", "1s")
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "not reachable")
}

func TestValidateCommand(t *testing.T) {
	url, rec := startServer(t)

	stdout, err := executeCommand("validate", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Tests completed: 4, passed: 4, failed: 0")
	assert.Equal(t, 2, rec.Chain().Len())

	_, err = executeCommand("validate", "--url", "http://127.0.0.1:1")
	assert.Equal(t, 1, exitCode(err))
}

func TestChainExportAndValidateFile(t *testing.T) {
	url, rec := startServer(t)
	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := rec.RecordOperation(context.Background(), model.OpHash, name, testSHA256)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "chain.jsonl")
	_, err := executeCommand("chain", "export", "--url", url, "-o", path)
	require.NoError(t, err)

	exported, err := audit.ReadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, rec.Chain().Blocks(), exported)

	stdout, err := executeCommand("chain", "validate", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Chain VALID")

	exported[1].Filename = "swapped.txt"
	require.NoError(t, audit.WriteFile(path, exported, audit.FormatJSONL))
	stdout, err = executeCommand("chain", "validate", "--file", path)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "INVALID at block 1")
}

func TestChainExport_Stdout(t *testing.T) {
	url, _ := startServer(t)

	stdout, err := executeCommand("chain", "export", "--url", url, "--format", "json")
	require.NoError(t, err)
	var blocks []model.Block
	require.NoError(t, json.Unmarshal([]byte(stdout), &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, model.OpGenesis, blocks[0].Operation)

	_, err = executeCommand("chain", "export", "--url", url, "--format", "xml")
	assert.ErrorIs(t, err, errclass.ErrFormatUnsupported)
}

func TestChainValidate_Remote(t *testing.T) {
	url, _ := startServer(t)

	stdout, err := executeCommand("chain", "validate", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Chain VALID")

	stdout, err = executeCommand("--json", "chain", "validate", "--url", url)
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid":true,"invalid_block":null}`, stdout)
}

func TestChainLog(t *testing.T) {
	url, rec := startServer(t)
	_, err := rec.RecordOperation(context.Background(), model.OpHash, "a.txt", testSHA256)
	require.NoError(t, err)
	_, err = rec.RecordOperation(context.Background(), model.OpVerification, "a.txt", model.ResultValid)
	require.NoError(t, err)

	stdout, err := executeCommand("chain", "log", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 blocks, chain VALID")
	assert.Contains(t, stdout, "VERIFICATION:valid")
	assert.Less(t, strings.Index(stdout, "VERIFICATION"), strings.Index(stdout, "GENESIS"), "newest first")

	stdout, err = executeCommand("--json", "chain", "log", "--url", url, "-n", "1")
	require.NoError(t, err)
	var log struct {
		BlockCount int           `json:"block_count"`
		Status     string        `json:"chain_validity_status"`
		Blocks     []model.Block `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &log))
	assert.Equal(t, 3, log.BlockCount)
	assert.Equal(t, "valid", log.Status)
	require.Len(t, log.Blocks, 1)
	assert.Equal(t, 2, log.Blocks[0].Index)
}

func TestChainLog_File(t *testing.T) {
	rec := chain.NewRecorder()
	_, err := rec.RecordOperation(context.Background(), model.OpHash, "a.txt", testSHA256)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, audit.WriteFile(path, rec.Chain().Blocks(), audit.FormatJSON))

	stdout, err := executeCommand("chain", "log", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 blocks, chain VALID")
	assert.Contains(t, stdout, "a.txt")
}

func TestConfigCommands(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "hashtrail.yaml")

	stdout, err := executeCommand("--config", path, "config", "set", "server.port", "9000")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Set server.port = 9000")

	stdout, err = executeCommand("--config", path, "config", "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "9000\n", stdout)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	stdout, err = executeCommand("--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "port: 9000")

	_, err = executeCommand("--config", path, "config", "set", "server.port", "70000")
	assert.Error(t, err)

	_, err = executeCommand("config", "set", "server.port", "9000")
	assert.Error(t, err)

	stdout, err = executeCommand("config", "keys")
	require.NoError(t, err)
	assert.Contains(t, stdout, "server.port")
}

func TestCompletionCommand(t *testing.T) {
	stdout, err := executeCommand("completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hashtrail")

	_, err = executeCommand("completion", "tcsh")
	assert.Error(t, err)
}

func TestRunServer_ShutsDownOnCancel(t *testing.T) {
	prev := logging.Global()
	t.Cleanup(func() { logging.SetGlobal(prev) })

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Logging.File = filepath.Join(t.TempDir(), "hashtrail.log")
	cfg.Monitor.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, runServer(ctx, cfg))

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "starting hashtrail")
}

func TestHashCommand_Progress(t *testing.T) {
	path := writeFile(t, "test.txt", "test")

	out, err := executeCommand("hash", "--progress", path)
	require.NoError(t, err)
	assert.Contains(t, out, "hashing test.txt")
	assert.Contains(t, out, "(100%)")
	assert.Contains(t, out, testSHA256)
}

func TestChainExport_TemplatedName(t *testing.T) {
	url, _ := startServer(t)
	dir := t.TempDir()

	stdout, err := executeCommand("chain", "export", "--url", url, "-o", filepath.Join(dir, "chain-{blocks}.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 1 blocks")
	_, err = os.Stat(filepath.Join(dir, "chain-1.jsonl"))
	assert.NoError(t, err)
}
