package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listOrdersCmd = &cobra.Command{
	Use:   "list-orders",
	Short: "List orders on the exchange",
	RunE:  runListOrdersCmd,
}

//nolint:gochecknoglobals // Cobra boilerplate
var listOrdersStatus string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listOrdersCmd)
	listOrdersCmd.Flags().StringVarP(&listOrdersStatus, "status", "s", "resting", "Order status filter (resting, canceled, executed)")
}

func runListOrdersCmd(cmd *cobra.Command, args []string) error {
	client, _, err := newExchangeClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orders, err := client.GetOrders(ctx, listOrdersStatus)
	if err != nil {
		return fmt.Errorf("get orders: %w", err)
	}

	if len(orders) == 0 {
		fmt.Printf("No %s orders\n", listOrdersStatus)
		return nil
	}

	fmt.Printf("%-28s %-30s %-4s %6s %6s %6s\n", "ORDER ID", "TICKER", "SIDE", "PRICE", "COUNT", "REM")
	for i := range orders {
		o := &orders[i]
		fmt.Printf("%-28s %-30s %-4s %5d¢ %6d %6d\n",
			o.OrderID, o.Ticker, o.Side, o.Price(), o.InitialCount, o.RemainingCount)
	}

	return nil
}
