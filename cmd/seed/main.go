// Command main runs the database seeder for Kinship.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/middleware"
	"kinship/internal/seed"
	"kinship/internal/store"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of profiles to create")
	postsPerUser := flag.Int("posts", 3, "Posts per profile")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	presetFile := flag.String("presets", "seed_presets.yml", "YAML file of named presets")
	preset := flag.String("preset", "", "Apply a named preset (ignores -users and -posts)")
	seedValue := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	opts := seed.DefaultOptions()
	if *preset != "" {
		f, err := os.Open(*presetFile)
		if err != nil {
			log.Fatalf("Failed to open presets: %v", err)
		}
		presets, err := seed.ParsePresets(f)
		_ = f.Close()
		if err != nil {
			log.Fatalf("Failed to read presets: %v", err)
		}
		p, ok := presets[*preset]
		if !ok {
			log.Fatalf("Unknown preset %q in %s", *preset, *presetFile)
		}
		opts = p
		log.Printf("Applying preset: %s", *preset)
	} else {
		opts.Users = *numUsers
		opts.PostsPerUser = *postsPerUser
		opts.Seed = *seedValue
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	if *shouldClean {
		if err := seed.ClearAll(ctx, db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	st := store.New(db, store.WithMaxRetries(cfg.StoreMaxRetries), store.WithLogger(middleware.Logger))
	rep, err := seed.NewSeeder(st, middleware.Logger).Run(ctx, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d profiles, %d friendships, %d pending requests, %d blocks",
		rep.Profiles, rep.Friendships, rep.Pending, rep.Blocks)
	log.Printf("Created %d posts, %d comments, %d likes", rep.Posts, rep.Comments, rep.Likes)
	if len(rep.UserIDs) > 0 {
		log.Printf("Seeded user ids run from %s to %s; the first is an admin", rep.UserIDs[0], rep.UserIDs[len(rep.UserIDs)-1])
	}
}
