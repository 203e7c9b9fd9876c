package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateAverage float64
	simulateSpot    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-rejection",
	Short: "模拟一次价格偏离并触发拒绝告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAverage <= 0 || simulateSpot <= 0 {
			return errors.New("--average 与 --spot 必须大于 0")
		}

		average := decimal.NewFromFloat(simulateAverage)
		spot := decimal.NewFromFloat(simulateSpot)
		return getApp().SimulateRejection(cmd.Context(), average, spot)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateAverage, "average", 0, "模拟的历史均价")
	simulateCmd.Flags().Float64Var(&simulateSpot, "spot", 0, "模拟的现价")
}
