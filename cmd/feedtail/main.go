// Command feedtail prints the live feed, a live title search or one post
// with its comments until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"feedsync/internal/bootstrap"
	"feedsync/internal/config"
	"feedsync/internal/handlers"
	"feedsync/internal/models"
	"feedsync/internal/server"
	"feedsync/internal/service"
	"feedsync/internal/timefmt"
)

func main() {
	prefix := flag.String("search", "", "Follow posts whose title starts with this text instead of the feed")
	postID := flag.String("post", "", "Follow one post and its comments")
	limit := flag.Int("limit", 0, "Maximum feed posts (0 uses FEED_LIMIT)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if cfg.MetricsAddr != "" {
		h := &handlers.Handlers{Service: bootstrap.ServiceName, Checks: rt.HealthChecks()}
		go func() {
			if err := server.ListenAndServe(ctx, cfg.MetricsAddr, server.NewMux(h)); err != nil {
				log.Printf("ops server stopped: %v", err)
			}
		}()
		log.Printf("📈 Serving /health and /metrics on %s", cfg.MetricsAddr)
	}

	var h *service.Handle
	switch {
	case *postID != "":
		h, err = rt.Subscriptions.SubscribePost(ctx, *postID, printPost)
	case *prefix != "":
		h, err = rt.Subscriptions.SearchByTitlePrefix(ctx, *prefix, printPosts("search "+*prefix))
	default:
		h = rt.Subscriptions.SubscribeFeed(ctx, *limit, printPosts("feed"))
	}
	if err != nil {
		log.Printf("❌ %s", models.UserMessage(err))
		return
	}
	defer h.Dispose()

	<-ctx.Done()
	log.Println("👋 Stopped")
}

func printPosts(label string) func([]*models.Post, error) {
	return func(posts []*models.Post, err error) {
		if err != nil {
			log.Printf("❌ %s: %s", label, models.UserMessage(err))
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "── %s (%d) ──\n", label, len(posts))
		for _, p := range posts {
			fmt.Fprintf(&b, "%s  %-50s ♥ %d  💬 %d  🔗 %d  [%s]\n",
				timefmt.FormatKST(p.CreatedAt), p.Title, p.LikeCount, p.CommentCount, p.AttachCount, p.ID)
		}
		fmt.Print(b.String())
	}
}

func printPost(p *models.Post, comments []*models.Comment, err error) {
	if err != nil {
		log.Printf("❌ post: %s", models.UserMessage(err))
		return
	}
	if p == nil {
		fmt.Println("── post not found ──")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "── %s ── %s\n%s\n교훈: %s\n", p.Title, timefmt.FormatKST(p.CreatedAt), p.Body, p.Lessons)
	for _, c := range comments {
		switch content := c.Content.(type) {
		case models.TextContent:
			fmt.Fprintf(&b, "  %s  %s\n", timefmt.FormatKST(c.CreatedAt), content.Body)
		case models.AttachContent:
			fmt.Fprintf(&b, "  %s  📎 %s: %s [%s]\n", timefmt.FormatKST(c.CreatedAt), content.Title, content.Snippet, content.PostID)
		}
	}
	fmt.Print(b.String())
}
