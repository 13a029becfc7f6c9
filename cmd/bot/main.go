package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "digit-bot",
		Short: "Digit contracts trading bot",
		Long:  `Trades digit contracts on a WebSocket exchange API with a martingale stake and profit/loss stops`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is configs/$CONFIG_FILE or configs/values_local.yaml)")

	rootCmd.AddCommand(runCmd(), accountsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
