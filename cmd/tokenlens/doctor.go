package tokenlens

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/market"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose issues with the TokenLens installation",
	RunE:  runDoctor,
}

var doctorOffline bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip checks that reach external services")
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("TokenLens Doctor v%s\n", version)
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Go: %s\n\n", runtime.Version())

	cfg := config.Current()
	checks := []checkResult{
		checkDataDir(),
		checkConfig(),
		checkDatabase(cfg),
		checkLLM(cfg),
		checkNotify(cfg),
	}
	if !doctorOffline {
		checks = append(checks, checkMarket(cfg))
	}
	checks = append(checks, checkServer(cfg))

	passed, failed := 0, 0
	for _, c := range checks {
		status := "✓"
		if !c.ok {
			status = "✗"
			failed++
		} else {
			passed++
		}
		fmt.Printf("  %s %s: %s\n", status, c.name, c.detail)
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func checkDataDir() checkResult {
	dir := config.DataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return checkResult{"Data directory", false, fmt.Sprintf("%s does not exist", dir)}
	}
	if !info.IsDir() {
		return checkResult{"Data directory", false, fmt.Sprintf("%s is not a directory", dir)}
	}
	return checkResult{"Data directory", true, dir}
}

func checkConfig() checkResult {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config file", true, fmt.Sprintf("%s not found (using defaults)", path)}
	}
	if err := config.Current().Validate(); err != nil {
		return checkResult{"Config file", false, err.Error()}
	}
	return checkResult{"Config file", true, path}
}

func checkDatabase(cfg *config.Config) checkResult {
	info, err := os.Stat(cfg.Store.DSN)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("%s not found (will be created on first start)", cfg.Store.DSN)}
	}
	st, _, err := openData(cfg)
	if err != nil {
		return checkResult{"Database", false, err.Error()}
	}
	defer st.Close()
	stats, err := st.Stats(context.Background())
	if err != nil {
		return checkResult{"Database", false, err.Error()}
	}
	return checkResult{"Database", true, fmt.Sprintf("%s (%d KB, %d tasks)", cfg.Store.DSN, info.Size()/1024, stats.Total)}
}

func checkLLM(cfg *config.Config) checkResult {
	p := strings.ToLower(cfg.LLM.Provider)
	switch p {
	case "", "none":
		return checkResult{"LLM provider", true, "none (health checks use the fallback verdict)"}
	case "ollama":
		return checkResult{"LLM provider", true, "ollama (local, no key needed)"}
	}
	if cfg.LLM.APIKeyEnv == "" {
		return checkResult{"LLM provider", true, fmt.Sprintf("%s (key from the provider's default env var)", p)}
	}
	if key := cfg.LLM.APIKey(); key == "" {
		return checkResult{"LLM provider", false, fmt.Sprintf("%s: %s not set", p, cfg.LLM.APIKeyEnv)}
	}
	return checkResult{"LLM provider", true, fmt.Sprintf("%s (%s set)", p, cfg.LLM.APIKeyEnv)}
}

func checkNotify(cfg *config.Config) checkResult {
	nc := cfg.Notify
	if nc.SecretEnv != "" && nc.WebhookURL != "" && nc.Secret() == "" {
		return checkResult{"Notifications", false, fmt.Sprintf("%s not set, deliveries would be unsigned", nc.SecretEnv)}
	}
	if nc.Slack.Enabled() && nc.Slack.Token() == "" {
		return checkResult{"Notifications", false, fmt.Sprintf("slack: %s not set", nc.Slack.TokenEnv)}
	}
	if nc.Telegram.Enabled() && nc.Telegram.Token() == "" {
		return checkResult{"Notifications", false, fmt.Sprintf("telegram: %s not set", nc.Telegram.TokenEnv)}
	}
	if nc.Discord.Enabled() && nc.Discord.WebhookURL() == "" {
		return checkResult{"Notifications", false, fmt.Sprintf("discord: %s not set", nc.Discord.WebhookEnv)}
	}
	if nc.Matrix.Enabled() && nc.Matrix.Token() == "" {
		return checkResult{"Notifications", false, fmt.Sprintf("matrix: %s not set", nc.Matrix.TokenEnv)}
	}

	n, err := buildNotifiers(nc)
	if err != nil {
		return checkResult{"Notifications", false, err.Error()}
	}
	if n.Name() == "noop" {
		return checkResult{"Notifications", true, "disabled"}
	}
	return checkResult{"Notifications", true, n.Name()}
}

func checkMarket(cfg *config.Config) checkResult {
	c := market.NewClient(cfg.Market.BaseURL, cfg.Market.TimeoutDuration())
	// WETH on Base is always listed.
	_, err := c.Snapshot(context.Background(), "base", "0x4200000000000000000000000000000000000006")
	if err != nil {
		return checkResult{"Market data", false, err.Error()}
	}
	return checkResult{"Market data", true, cfg.Market.BaseURL}
}

func checkServer(cfg *config.Config) checkResult {
	url := localURL(cfg) + "/healthz"

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return checkResult{"Server", true, "not running"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return checkResult{"Server", true, fmt.Sprintf("running at :%d", cfg.Server.Port)}
	}
	return checkResult{"Server", false, fmt.Sprintf("unhealthy (status %d)", resp.StatusCode)}
}
