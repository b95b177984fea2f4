package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/pkg/color"
	"github.com/hashtrail-project/hashtrail/pkg/config"
)

// loadConfig reads --config (or the defaults) with environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// serverURL picks the server to talk to: the flag, then TEST_URL, then the
// configured local port.
func serverURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if u := os.Getenv("TEST_URL"); u != "" {
		return u, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port), nil
}

// importFactory returns the factory used to check imported block timestamps.
func importFactory() (*chain.Factory, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return chain.NewFactory(chain.WithTolerance(cfg.Limits.FutureTolerance)), nil
}

func fmtErr(format string, args ...any) {
	prefix := "hashtrail: "
	if color.Enabled() {
		prefix = color.Error("hashtrail:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}

func formatTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
