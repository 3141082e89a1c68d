package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oddsmith/kalshi-mm/internal/app"
	"github.com/oddsmith/kalshi-mm/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the market maker",
	Long: `Starts the market maker, which will:
1. Authenticate against the exchange and verify the account balance
2. Connect the market and account data stream
3. Serve the operator API and dashboard push channel
4. Quote every match the operator adds and starts`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if err := application.Run(); err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
