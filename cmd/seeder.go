package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/factory-console/internal/identity"
	"github.com/frahmantamala/factory-console/internal/storage"
	"github.com/frahmantamala/factory-console/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the store with the built-in accounts",
	Long:  `Seed the user directory with the built-in admin, sales and security accounts for development and first-run setups.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		gormDB, _, err := initDB(cfg.Storage)
		if err != nil {
			log.Fatalf("failed to init storage: %v", err)
		}

		store := storage.NewSQLStore(gormDB, logger.LoggerWrapper())
		if !cfg.Storage.IsPostgres() {
			if err := store.Migrate(); err != nil {
				log.Fatalf("failed to migrate storage schema: %v", err)
			}
		}

		var existing []identity.User
		loadErr := store.Load(storage.KeyUsers, &existing)
		if loadErr == nil && len(existing) > 0 && !clearData {
			fmt.Printf("directory already holds %d users; pass --clear to reseed\n", len(existing))
			return
		}
		if loadErr != nil && !errors.Is(loadErr, storage.ErrKeyNotFound) && !errors.Is(loadErr, storage.ErrMalformedPayload) {
			log.Fatalf("failed to read existing directory: %v", loadErr)
		}

		users := identity.SeedUsers()
		if hashSeeds {
			for i := range users {
				hash, err := identity.HashPassword(users[i].Password, cfg.Security.BCryptCost)
				if err != nil {
					log.Fatalf("failed to hash seed password: %v", err)
				}
				users[i].Password = hash
			}
		}

		if err := store.Save(storage.KeyUsers, users); err != nil {
			log.Fatalf("failed to persist seed directory: %v", err)
		}

		for _, u := range users {
			fmt.Printf("seeded %s (%s)\n", u.Username, u.FullName())
		}
		fmt.Println("seed complete")
	},
}
