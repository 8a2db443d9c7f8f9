package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dependency health and subscription state",
	Run:   runStatus,
}

var (
	walletMinUSD     float64
	walletLimit      int
	walletCollection string
)

var walletCmd = &cobra.Command{
	Use:   "wallet [address] [token]",
	Short: "Show the top holdings of a wallet, or its balance of one token",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runWallet,
}

func init() {
	walletCmd.Flags().Float64Var(&walletMinUSD, "min-usd", 1, "hide holdings worth less than this")
	walletCmd.Flags().IntVar(&walletLimit, "limit", 10, "number of holdings to show")
	walletCmd.Flags().StringVar(&walletCollection, "collection", "", "count the assets of this collection held by the wallet")
	rootCmd.AddCommand(statusCmd, walletCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	engine, _ := openEngine(ctx)
	defer func() {
		_ = engine.Close()
	}()

	report := engine.Health(ctx)
	fmt.Printf("System: %s\n\n", report.SystemStatus)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tLATENCY\tERROR")
	for name, c := range report.Components {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", name, c.Status, c.LatencyMS, c.Error)
	}
	_ = w.Flush()

	subs, err := engine.Subscriptions(ctx)
	if err != nil {
		slog.Error("Failed to list subscriptions", "error", err)
		os.Exit(1)
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DESTINATION\tTOKEN\tERRORS\tLAST SLOT\tLAST SIGNATURE\tPRICE")
	for _, s := range subs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%.6g\n",
			s.Destination, s.Token, s.ConsecutiveErrors, s.Cursor.LastSeenSlot, s.Cursor.LastSeenSignature, s.LastPriceUSD)
	}
	_ = w.Flush()
}

func runWallet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	engine, _ := openEngine(ctx)
	defer func() {
		_ = engine.Close()
	}()

	if walletCollection != "" {
		n, err := engine.WalletCollectionCount(ctx, args[0], walletCollection)
		if err != nil {
			slog.Error("Failed to count collection assets", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s holds %d assets of %s\n", args[0], n, walletCollection)
		return
	}

	if len(args) == 2 {
		balance, err := engine.WalletBalance(ctx, args[0], args[1])
		if err != nil {
			slog.Error("Failed to get balance", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s holds %s of %s\n", args[0], balance.String(), args[1])
		return
	}

	holdings, err := engine.WalletHoldings(ctx, args[0], walletMinUSD, walletLimit)
	if err != nil {
		slog.Error("Failed to get holdings", "error", err)
		os.Exit(1)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TOKEN\tSYMBOL\tAMOUNT\tUSD")
	for _, h := range holdings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", h.Mint, h.Symbol, h.Amount.String(), h.ValueUSD)
	}
	_ = w.Flush()
}
