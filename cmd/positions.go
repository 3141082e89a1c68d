package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show net contract positions per ticker",
	Long: `Lists the account's signed net position for every ticker with
exposure: positive counts are YES contracts, negative are NO.`,
	RunE: runPositionsCmd,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)
}

func runPositionsCmd(cmd *cobra.Command, args []string) error {
	client, _, err := newExchangeClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	positions, err := client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	if len(positions) == 0 {
		fmt.Println("No open positions")
		return nil
	}

	tickers := make([]string, 0, len(positions))
	for ticker := range positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	fmt.Printf("%-30s %10s\n", "TICKER", "POSITION")
	for _, ticker := range tickers {
		pos := positions[ticker]
		side := "YES"
		count := pos
		if pos < 0 {
			side = "NO"
			count = -pos
		}
		fmt.Printf("%-30s %6d %s\n", ticker, count, side)
	}

	return nil
}
