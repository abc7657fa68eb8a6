package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "campuspay",
	Short: "Campus cashless payment ledger",
	Long: `campuspay keeps student balances, store charges and store settlements.
Run "campuspay serve" for the HTTP API and background jobs, or use the
maintenance commands against the same database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML config file")
}

func main() {
	// .env 可选，不存在时只用环境变量
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
