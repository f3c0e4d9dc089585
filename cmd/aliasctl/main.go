package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "aliasctl",
	Short: "Curate and evaluate the entity alias catalog",
	Long: `aliasctl manages the alias catalog the resolver links mentions against.

Available subcommands:
  add     - Write a manual alias
  list    - List aliases of a ticker
  review  - Inspect and decide pending review items
  resolve - Resolve a raw name without touching the cache
  seed    - Load {name, ticker, aliases[]} records as manual aliases
  eval    - Run a golden set through the resolver and report accuracy`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(addCmd, listCmd, reviewCmd, resolveCmd, seedCmd, evalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
