package tokenlens

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy once: delete old finished tasks and audit entries",
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg := config.Current()
	st, al, err := openData(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := buildRetention(cfg, st, al)
	if err != nil {
		return err
	}
	if s.Len() == 0 {
		fmt.Println("Retention is disabled; nothing to prune.")
		return nil
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, "text", nil)
	if err := s.RunNow(telemetry.WithLogger(context.Background(), logger)); err != nil {
		return err
	}
	fmt.Println("Retention applied.")
	return nil
}
