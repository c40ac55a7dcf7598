// cmd/bookswapctl/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"bookswap/internal/config"
	"bookswap/internal/logging"
	"bookswap/internal/store"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "bookswapctl",
		Short:        "Administer BookSwap data",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("BOOKSWAP_CONFIG"), "path to the TOML config file")

	open := func(ctx context.Context) (*config.Config, *store.DB, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		db, err := store.Open(ctx, cfg.Store, logging.New(os.Stderr, cfg.Log))
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return cfg, db, nil
	}

	root.AddCommand(
		newCheckCmd(open),
		newRepairCmd(open),
		newUserAddCmd(open),
	)
	return root
}

// opener loads the config and opens the store it names.
type opener func(ctx context.Context) (*config.Config, *store.DB, error)
