// Command seed fills the configured document store with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"feedsync/internal/bootstrap"
	"feedsync/internal/config"
	"feedsync/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.Users, "Number of anonymous users to create")
	numPosts := flag.Int("posts", defaults.Posts, "Number of posts to create")
	maxComments := flag.Int("comments", defaults.MaxCommentsPerPost, "Maximum comments per post")
	maxLikes := flag.Int("likes", defaults.MaxLikesPerPost, "Maximum likes per post")
	attachRatio := flag.Float64("attach-ratio", defaults.AttachRatio, "Chance that a post gets an attach comment")
	seedValue := flag.Int64("seed", defaults.Seed, "Random seed")
	flag.Parse()

	log.Println("🌱 Feed Seeder")
	log.Println("==============")
	log.Printf("Target: %d users, %d posts\n", *numUsers, *numPosts)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StoreDriver == config.StoreMemory {
		log.Println("⚠️  STORE_DRIVER=memory: seeded data disappears when this process exits")
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	s := seed.NewSeeder(rt.Store, bootstrap.Limits(cfg), seed.SeedOptions{
		Users:              *numUsers,
		Posts:              *numPosts,
		MaxCommentsPerPost: *maxComments,
		MaxLikesPerPost:    *maxLikes,
		AttachRatio:        *attachRatio,
		Seed:               *seedValue,
	})
	sum, err := s.Run(ctx)
	if err != nil {
		log.Printf("❌ Seeding failed: %v", err)
		return
	}

	log.Printf("✨ Created %d users, %d posts, %d comments, %d attach comments, %d likes",
		sum.Users, sum.Posts, sum.Comments, sum.AttachComments, sum.Likes)
}
