package tokenlens

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/config"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tokenlens",
	Short: "TokenLens - an A2A agent for token risk analysis",
	Long: "TokenLens serves the risk-baseline and token-health-check skills over A2A JSON-RPC. " +
		"It scores Base and Solana tokens from live DEX market data and an optional LLM verdict.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := loadConfig()
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.tokenlens/tokenlens.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(auditCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of TokenLens",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tokenlens v%s\n", version)
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
