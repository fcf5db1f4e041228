package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Stripstone/OfflineEbayMonitor/internal/app"
	"github.com/Stripstone/OfflineEbayMonitor/internal/listing"
)

var (
	evalTitle    string
	evalPrice    string
	evalShipping string
	evalBids     int
	evalQty      int
	evalMinutes  int
	evalKey      string
	evalFlags    []string
	evalNotify   bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Classify a hypothetical listing against the current benchmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if evalTitle == "" {
			return errors.New("--title is required")
		}
		price, err := decimal.NewFromString(evalPrice)
		if err != nil {
			return fmt.Errorf("invalid --price value: %w", err)
		}
		shipping, err := decimal.NewFromString(evalShipping)
		if err != nil {
			return fmt.Errorf("invalid --shipping value: %w", err)
		}

		_, err = getApp().Evaluate(cmd.Context(), app.EvaluateOptions{
			Title:       evalTitle,
			ItemPrice:   price,
			Shipping:    shipping,
			Bids:        evalBids,
			Quantity:    evalQty,
			MinutesLeft: evalMinutes,
			Key:         evalKey,
			Flags:       evalFlags,
			Notify:      evalNotify,
		})
		return err
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalTitle, "title", "", "Listing title")
	evaluateCmd.Flags().StringVar(&evalPrice, "price", "0", "Item price (USD)")
	evaluateCmd.Flags().StringVar(&evalShipping, "shipping", "0", "Shipping price (USD)")
	evaluateCmd.Flags().IntVar(&evalBids, "bids", 0, "Bid count")
	evaluateCmd.Flags().IntVar(&evalQty, "qty", 0, "Quantity (0 reads it from the title)")
	evaluateCmd.Flags().IntVar(&evalMinutes, "minutes-left", 60, "Minutes until the auction ends")
	evaluateCmd.Flags().StringVar(&evalKey, "key", "", "Identity key override, e.g. \"Morgan Dollar|1921|P\"")
	evaluateCmd.Flags().StringSliceVar(&evalFlags, "flag", nil, "Listing flags (repeatable): "+strings.Join(listing.FlagNames(), ", "))
	evaluateCmd.Flags().BoolVar(&evalNotify, "notify", false, "Send an actionable verdict through the configured channels")
}
