package tokenlens

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <token-address>",
	Short: "Run a skill locally against one token and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var (
	analyzeChain     string
	analyzeSkill     string
	analyzeDevWallet string
	analyzeOutput    string
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeChain, "chain", "", "Base or Solana (inferred from the address when empty)")
	analyzeCmd.Flags().StringVar(&analyzeSkill, "skill", "", "skill id (default: inferred from the input)")
	analyzeCmd.Flags().StringVar(&analyzeDevWallet, "dev-wallet", "", "developer wallet, for token-health-check")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "text", "text, json or yaml")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Current()
	reg, _, err := buildSkills(cfg)
	if err != nil {
		return err
	}

	input := map[string]any{"tokenAddress": args[0]}
	if analyzeChain != "" {
		input["chain"] = analyzeChain
	}
	if analyzeDevWallet != "" {
		input["devWallet"] = analyzeDevWallet
	}

	skillID := analyzeSkill
	if skillID == "" {
		skillID = a2a.InferSkill(input)
	}
	run, ok := reg.Lookup(skillID)
	if !ok {
		return fmt.Errorf("unknown skill %q", skillID)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, "text", os.Stderr)
	ctx, cancel := context.WithTimeout(telemetry.WithLogger(context.Background(), logger), 30*time.Second)
	defer cancel()

	result := run(ctx, input)
	if result.Error != "" {
		return fmt.Errorf("%s", result.Error)
	}

	if analyzeOutput != "text" {
		return printStructured(os.Stdout, analyzeOutput, result.Parts)
	}
	for _, p := range result.Parts {
		if p.Type == a2a.PartTypeText {
			fmt.Println(p.Text)
		}
	}
	return nil
}
