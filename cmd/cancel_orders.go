package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrdersCmd = &cobra.Command{
	Use:   "cancel-orders [order-id...]",
	Short: "Cancel orders by id, or every resting order",
	Long: `Cancels the given order ids. With no arguments, lists every
resting order on the account and cancels them all.`,
	RunE: runCancelOrdersCmd,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrdersCmd)
}

func runCancelOrdersCmd(cmd *cobra.Command, args []string) error {
	client, _, err := newExchangeClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ids := args
	if len(ids) == 0 {
		orders, err := client.GetOrders(ctx, "resting")
		if err != nil {
			return fmt.Errorf("list resting orders: %w", err)
		}
		for i := range orders {
			ids = append(ids, orders[i].OrderID)
		}
	}

	if len(ids) == 0 {
		fmt.Println("No orders to cancel")
		return nil
	}

	cancelled := 0
	for _, id := range ids {
		if err := client.CancelOrder(ctx, id); err != nil {
			fmt.Printf("cancel %s: %v\n", id, err)
			continue
		}
		cancelled++
	}

	fmt.Printf("Cancelled %d/%d orders\n", cancelled, len(ids))
	return nil
}
