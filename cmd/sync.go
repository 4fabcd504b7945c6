package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abarwater/aqua-router/config"
	"github.com/abarwater/aqua-router/domain/catalog"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one catalog sync against the upstream source and exit",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "fetch and merge without replacing the catalog store")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if syncDryRun {
		rep, err := a.SyncWorker.RunDryRun(ctx, catalog.TriggeredByManual)
		if err != nil {
			return err
		}
		fmt.Printf("dry run: %d cities, %d brands, %d products, %d errors\n",
			rep.CitiesProcessed, rep.BrandsProcessed, rep.ProductsProcessed, len(rep.Errors))
		return nil
	}

	rep, err := a.SyncWorker.RunOnce(ctx, catalog.TriggeredByManual)
	if err != nil {
		return err
	}
	fmt.Printf("sync complete: %d cities, %d brands, %d products, %d errors\n",
		rep.CitiesProcessed, rep.BrandsProcessed, rep.ProductsProcessed, len(rep.Errors))
	return nil
}
