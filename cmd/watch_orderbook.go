package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-orderbook <ticker>",
	Short: "Poll and print a ticker's top of book",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchOrderbookCmd,
}

//nolint:gochecknoglobals // Cobra boilerplate
var watchInterval time.Duration

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
	watchOrderbookCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 2*time.Second, "Poll interval")
}

func runWatchOrderbookCmd(cmd *cobra.Command, args []string) error {
	ticker := args[0]

	client, _, err := newExchangeClient()
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	poll := time.NewTicker(watchInterval)
	defer poll.Stop()

	fmt.Printf("Watching %s (interval %s, Ctrl-C to stop)\n", ticker, watchInterval)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snapshot, err := client.GetOrderbook(ctx, ticker)
		cancel()
		if err != nil {
			fmt.Printf("%s  error: %v\n", time.Now().Format("15:04:05"), err)
		} else {
			printTopOfBook(snapshot)
		}

		select {
		case <-sigChan:
			return nil
		case <-poll.C:
		}
	}
}

func printTopOfBook(s *types.OrderbookSnapshot) {
	yesBid, yesQty := bestLevel(s.Yes)
	noBid, noQty := bestLevel(s.No)

	yesAsk := 100
	if noBid > 0 {
		yesAsk = 100 - noBid
	}

	fmt.Printf("%s  yes-bid %2d¢ x%-5d  no-bid %2d¢ x%-5d  yes-ask %3d¢  spread %d¢\n",
		time.Now().Format("15:04:05"), yesBid, yesQty, noBid, noQty, yesAsk, yesAsk-yesBid)
}

func bestLevel(ladder [][2]int) (price, qty int) {
	for _, level := range ladder {
		if level[0] > price {
			price, qty = level[0], level[1]
		}
	}
	return price, qty
}
