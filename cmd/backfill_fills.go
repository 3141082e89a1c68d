package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/journal"
)

//nolint:gochecknoglobals // Cobra boilerplate
var backfillFillsCmd = &cobra.Command{
	Use:   "backfill-fills",
	Short: "Import the account's fill history into the journal",
	Long: `Pages through the exchange's fill history, inserts each fill into
the journal (idempotent by trade id), and re-links fills to every match
already journaled. Run after downtime so P&L reflects fills the stream
missed.`,
	RunE: runBackfillFillsCmd,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(backfillFillsCmd)
}

func runBackfillFillsCmd(cmd *cobra.Command, args []string) error {
	client, cfg, err := newExchangeClient()
	if err != nil {
		return err
	}

	store, err := journal.NewSQLite(cfg.JournalPath, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	imported := 0
	cursor := ""
	for {
		fills, next, err := client.GetFills(ctx, cursor)
		if err != nil {
			return fmt.Errorf("get fills: %w", err)
		}

		for i := range fills {
			f := &fills[i]

			created := time.Now().UTC()
			if t, perr := time.Parse(time.RFC3339, f.CreatedTime); perr == nil {
				created = t
			} else if f.Ts > 0 {
				created = time.Unix(f.Ts, 0).UTC()
			}

			if err := store.InsertFill(ctx, &journal.Fill{
				ID:          f.TradeID,
				Ticker:      f.Ticker,
				Side:        f.Side,
				Action:      f.Action,
				Price:       f.Price(),
				Count:       f.Count,
				IsTaker:     f.IsTaker,
				CreatedTime: created,
				SyncedAt:    time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("insert fill %s: %w", f.TradeID, err)
			}
			imported++
		}

		if next == "" {
			break
		}
		cursor = next
	}

	// Re-link so fills that arrived while a match was unknown get a home.
	matches, err := store.ListMatches(ctx)
	if err != nil {
		return fmt.Errorf("list matches: %w", err)
	}
	for _, m := range matches {
		if err := store.LinkFillsToMatch(ctx, m.ID, m.TickerA, m.TickerB); err != nil {
			return fmt.Errorf("link fills for %s: %w", m.ID, err)
		}
	}

	fmt.Printf("Imported %d fills, re-linked %d matches\n", imported, len(matches))
	return nil
}
