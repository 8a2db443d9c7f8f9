package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cenetex/cosyworld-sub000/internal/control"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

var (
	subPlatform  string
	subScope     string
	subEmoji     string
	subThreshold float64
	subMinUSD    float64
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [destination] [token]",
	Short: "Start tracking a token for a destination",
	Long:  `Creates an active subscription. A running engine sharing the same database picks it up on its next start.`,
	Args:  cobra.ExactArgs(2),
	Run:   runSubscribe,
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe [destination] [token]",
	Short: "Stop tracking a token for a destination",
	Args:  cobra.ExactArgs(2),
	Run:   runUnsubscribe,
}

var listCmd = &cobra.Command{
	Use:   "list [destination]",
	Short: "List active subscriptions",
	Args:  cobra.MaximumNArgs(1),
	Run:   runList,
}

func init() {
	subscribeCmd.Flags().StringVar(&subPlatform, "platform", string(domain.PlatformPlain), "destination platform (telegram, discord, x, plain)")
	subscribeCmd.Flags().StringVar(&subScope, "scope", string(domain.ScopeDestination), "posting scope (per_destination, global)")
	subscribeCmd.Flags().StringVar(&subEmoji, "emoji", "", "emoji used in notifications")
	subscribeCmd.Flags().Float64Var(&subThreshold, "aggregate-usd", 0, "aggregate transfers below this USD value")
	subscribeCmd.Flags().Float64Var(&subMinUSD, "min-usd", 0, "skip swaps below this USD value")

	rootCmd.AddCommand(subscribeCmd, unsubscribeCmd, listCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	engine, _ := openEngine(ctx)
	defer func() {
		_ = engine.Close()
	}()

	sub, err := engine.Subscribe(ctx, control.SubscribeRequest{
		Destination: args[0],
		Token:       args[1],
		Platform:    domain.Platform(subPlatform),
		Scope:       domain.Scope(subScope),
		Preferences: domain.Preferences{
			Emoji:                   subEmoji,
			AggregationThresholdUSD: subThreshold,
			MinNotifyUSD:            subMinUSD,
		},
	})
	if err != nil {
		slog.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Subscribed %s to %s (id %s)\n", sub.DestinationID, sub.TokenAddress, sub.ID)
}

func runUnsubscribe(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	engine, _ := openEngine(ctx)
	defer func() {
		_ = engine.Close()
	}()

	if _, err := engine.Unsubscribe(ctx, args[0], args[1]); err != nil {
		slog.Error("Failed to unsubscribe", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Unsubscribed %s from %s\n", args[0], args[1])
}

func runList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	engine, _ := openEngine(ctx)
	defer func() {
		_ = engine.Close()
	}()

	destination := ""
	if len(args) == 1 {
		destination = args[0]
	}
	subs, err := engine.ListSubscriptions(ctx, destination)
	if err != nil {
		slog.Error("Failed to list subscriptions", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DESTINATION\tTOKEN\tPLATFORM\tSCOPE\tERRORS\tLAST SLOT\tCREATED")
	for _, s := range subs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.DestinationID, s.TokenAddress, s.Platform, s.Scope,
			s.ConsecutiveErrors, s.Cursor.LastSeenSlot, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
