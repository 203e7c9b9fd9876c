package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"feed-sentinel/internal/app"
)

var (
	quoteAmount string
	quoteFrom   string
	quoteTo     string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Convert an amount through the guarded feed price",
	RunE: func(cmd *cobra.Command, args []string) error {
		if quoteAmount == "" || quoteFrom == "" || quoteTo == "" {
			return fmt.Errorf("--amount, --from and --to must be provided")
		}

		amount, err := decimal.NewFromString(quoteAmount)
		if err != nil {
			return fmt.Errorf("invalid --amount value: %w", err)
		}

		opts := app.QuoteOptions{
			Amount: amount,
			From:   quoteFrom,
			To:     quoteTo,
		}

		return getApp().QuoteOnce(cmd.Context(), opts)
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteAmount, "amount", "", "Amount to convert, in whole token units")
	quoteCmd.Flags().StringVar(&quoteFrom, "from", "", "Token to convert from")
	quoteCmd.Flags().StringVar(&quoteTo, "to", "", "Token to convert to")
}
