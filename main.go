package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"bounty-arbitration-service/config"
	"bounty-arbitration-service/services"
	"bounty-arbitration-service/store"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bounty-arbitration",
		Short: "Claim arbitration for single-claim and competition bounties",
		Long: `bounty-arbitration decides who may work on a bounty. Single-claim bounties
grant one exclusive, time-limited lease; competition bounties register any number
of participants.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reclaimCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects the configured backend. Infrastructure failures on idempotent
// operations are retried by the returned store.
func openStore(cfg *config.Config) (store.Store, error) {
	var base store.Store
	switch cfg.StoreDriver {
	case store.DriverMemory:
		log.Println("⚠️  [STORE] Using in-memory store, state is lost on restart")
		base = store.NewMemoryStore()
	case store.DriverSQLite:
		gs, err := store.OpenGorm(store.DriverSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("✅ [STORE] SQLite ready at %s", cfg.SQLitePath)
		base = gs
	default:
		gs, err := store.OpenGorm(store.DriverPostgres, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("✅ [STORE] Postgres connected and migrated")
		base = gs
	}
	return store.WithRetry(base, 3, 25*time.Millisecond), nil
}

func newService(cfg *config.Config, st store.Store) *services.ArbitrationService {
	return services.NewArbitrationService(st, services.Options{
		DefaultLeaseDuration: cfg.DefaultLeaseDuration,
		MaxLeaseDuration:     cfg.MaxLeaseDuration,
		ReadTimeReclaim:      cfg.ReadTimeReclaim,
		ReclaimBatchSize:     cfg.ReclaimBatchSize,
	})
}
