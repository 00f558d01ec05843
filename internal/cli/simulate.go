package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateSymbol string
	simulateSpot   float64
	simulatePerp   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一组现货/合约价格并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulateSpot <= 0 || simulatePerp <= 0 {
			return errors.New("--spot 与 --perp 必须大于 0")
		}

		spot := decimal.NewFromFloat(simulateSpot)
		perp := decimal.NewFromFloat(simulatePerp)
		return getApp().SimulateAlert(cmd.Context(), simulateSymbol, spot, perp)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "交易对，如 BTCUSDT")
	simulateCmd.Flags().Float64Var(&simulateSpot, "spot", 0, "现货价格")
	simulateCmd.Flags().Float64Var(&simulatePerp, "perp", 0, "合约价格")
}
