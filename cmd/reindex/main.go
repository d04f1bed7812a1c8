// Command main rebuilds or verifies the secondary index rows of the store,
// and with -ages moves profiles whose age group went stale.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/middleware"
	"kinship/internal/models"
	"kinship/internal/profile"
	"kinship/internal/store"
)

func main() {
	kind := flag.String("kind", "", "Entity kind to process (default: all)")
	verify := flag.Bool("verify", false, "Report discrepancies without changing anything")
	ages := flag.Bool("ages", false, "Recompute stale age groups instead of reindexing")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db, store.WithMaxRetries(cfg.StoreMaxRetries), store.WithLogger(middleware.Logger))

	ctx := context.Background()
	if *ages {
		moved, err := profile.NewService(st, middleware.Logger).RefreshAges(ctx)
		if err != nil {
			log.Fatalf("Refresh ages failed: %v", err)
		}
		log.Printf("profile: moved %d to their current age group", moved)
		return
	}

	kinds := store.Kinds()
	if *kind != "" {
		kinds = []models.Kind{models.Kind(*kind)}
	}

	failed := false
	for _, k := range kinds {
		if *verify {
			problems, err := st.Verify(ctx, k)
			if err != nil {
				log.Fatalf("Verify %s failed: %v", k, err)
			}
			for _, p := range problems {
				log.Printf("%s: %s", k, p)
			}
			log.Printf("%s: %d problems", k, len(problems))
			failed = failed || len(problems) > 0
			continue
		}
		n, err := st.Reindex(ctx, k)
		if err != nil {
			log.Fatalf("Reindex %s failed: %v", k, err)
		}
		log.Printf("%s: wrote %d index rows", k, n)
	}
	if failed {
		os.Exit(1)
	}
}
