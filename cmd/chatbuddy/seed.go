package main

import (
	"fmt"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load products into the catalog",
	Long: `Upserts products into the catalog database at CATALOG_DB_PATH.

Without --file the built-in demo products are loaded.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML seed file keyed by business type")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	seeds := catalog.DemoSeed()
	if seedFile != "" {
		var err error
		if seeds, err = catalog.LoadSeedFile(seedFile); err != nil {
			return err
		}
	}

	repo, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := repo.Seed(ctx, seeds)
	if err != nil {
		return err
	}
	for bt := range seeds {
		count, err := repo.Count(ctx, bt)
		if err != nil {
			return err
		}
		logger.Info("catalog seeded", zap.String("business_type", string(bt)), zap.Int("products", count))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products into %s\n", n, cfg.CatalogPath)
	return nil
}
