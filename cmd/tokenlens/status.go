package tokenlens

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the health of a running TokenLens server",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Current()
	base := localURL(cfg)

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Println("status: server is not running")
		return nil
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("status: server returned %s\n", resp.Status)
		return nil
	}
	fmt.Println("status: server is healthy")

	req, _ := http.NewRequest(http.MethodGet, base+"/a2a/stats", nil)
	if cfg.Server.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Server.AuthToken)
	}
	resp, err = client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var stats a2a.Stats
	if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&stats) == nil {
		printStats(stats)
	}
	return nil
}

func localURL(cfg *config.Config) string {
	host := "127.0.0.1"
	switch cfg.Server.Bind {
	case "", "loopback", "lan", "all":
	default:
		host = cfg.Server.Bind
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func printStats(s a2a.Stats) {
	fmt.Printf("tasks: %d total, %d completed, %d failed, %d canceled, %d active\n",
		s.Total, s.Completed, s.Failed, s.Canceled, s.Pending+s.Working+s.InputRequired)
}
