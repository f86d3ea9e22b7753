package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/entitylink/internal/config"
	"github.com/sells-group/entitylink/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "entitylink",
	Short: "Fuzzy entity-resolution engine",
	Long:  "Links source company records to an external registry by tiered fuzzy name matching with geographic blocking, and writes accepted links back idempotently.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore opens the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or ENTITYLINK_STORE_DATABASE_URL)")
	}

	var poolCfg *store.PoolConfig
	if cfg.Store.MaxConns > 0 || cfg.Store.MinConns > 0 {
		poolCfg = &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
	}

	return store.New(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, poolCfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
