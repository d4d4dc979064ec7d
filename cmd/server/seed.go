package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/general-store/internal/config"
	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/core/service"
	"github.com/rl1809/general-store/internal/port"
)

// seedFile is the YAML layout read by the seed command and serve --seed.
type seedFile struct {
	Customers []domain.Customer `yaml:"customers"`
	Products  []domain.Product  `yaml:"products"`
}

func readSeedFile(path string) (seedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// applySeed writes the file's customers and products through the catalog
// service and returns the number of records written.
func applySeed(ctx context.Context, db port.Database, path string, logger *slog.Logger) (int, error) {
	seed, err := readSeedFile(path)
	if err != nil {
		return 0, err
	}

	written, err := service.NewCatalogService(db).Seed(ctx, seed.Customers, seed.Products)
	if err != nil {
		return 0, err
	}

	for _, c := range seed.Customers {
		logger.Info("seeded customer", "id", c.ID, "name", c.FullName())
	}
	for _, p := range seed.Products {
		logger.Info("seeded product", "id", p.ID, "name", p.Name, "number_in_inventory", p.NumberInInventory)
	}
	logger.Info("seed complete", "file", path, "records", written)
	return written, nil
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert customers and products from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverMemory {
				logger.Warn("seeding the in-memory store is lost on exit, use serve --seed instead")
			}
			st, err := openStore(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.close()

			_, err = applySeed(cmd.Context(), st.db, file, logger)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "YAML file with customers and products")
	return cmd
}
