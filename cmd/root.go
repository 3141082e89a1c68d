package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "kalshi-mm",
	Short: "Kalshi binary-market maker",
	Long: `Market maker for paired Kalshi binary event contracts.

The bot derives fair values from blended sportsbook odds, rests penny-up
bids on all four legs of each match inside an edge bound, and completes
the 100-cent arb across the two tickers while capping one-sided inventory.

Utility subcommands query balance, positions, and orders, watch a live
orderbook, and backfill the fill journal from the exchange.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
