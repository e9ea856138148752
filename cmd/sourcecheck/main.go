package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/analyzer"
	"github.com/leadscout/leadscout/internal/models"
	"github.com/leadscout/leadscout/internal/searches"
	"github.com/leadscout/leadscout/internal/sources"
)

// sourcecheck fetches one round of items from every connector for the keywords
// given on the command line and runs them through the rule classifier. No
// database is touched.
func main() {
	fmt.Println("🔍 leadscout - connector check")
	fmt.Println(strings.Repeat("=", 40))

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	logrus.SetLevel(logrus.WarnLevel)

	keywords := os.Args[1:]
	if len(keywords) == 0 {
		keywords = []string{"looking for a developer", "hiring"}
	}

	spec := &models.KeywordSearchSpec{
		ID:        "sourcecheck",
		Name:      "sourcecheck",
		Keywords:  keywords,
		Platforms: []string{models.PlatformReddit, models.PlatformHackerNews},
		Mode:      models.ModeOneTime,
		Enabled:   true,
	}
	searches.ApplyDefaults(spec)
	if err := searches.Validate(spec); err != nil {
		log.Fatalf("Invalid check search: %v", err)
	}

	connectors := []sources.Connector{
		sources.NewRedditConnector(sources.RedditOptions{
			ClientID:          os.Getenv("REDDIT_CLIENT_ID"),
			ClientSecret:      os.Getenv("REDDIT_CLIENT_SECRET"),
			MaxPostsPerSearch: 100,
		}),
		sources.NewHackerNewsConnector(""),
	}

	leadAnalyzer := analyzer.NewLeadAnalyzer(analyzer.NewRuleClassifier(), 0.5)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Printf("\n📡 Keywords: %s\n", strings.Join(keywords, ", "))
	fmt.Println(strings.Repeat("-", 40))

	for _, c := range connectors {
		checkConnector(ctx, c, leadAnalyzer, spec)
	}

	fmt.Println("\n✅ Check completed")
}

func checkConnector(ctx context.Context, c sources.Connector, a analyzer.Analyzer, spec *models.KeywordSearchSpec) {
	fmt.Printf("🔸 %s... ", c.Name())

	if !c.IsEnabled() {
		fmt.Println("⚠️  DISABLED (missing credentials)")
		return
	}

	items, err := c.Fetch(ctx, spec)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Printf("✅ %d items\n", len(items))

	leads := 0
	for _, item := range items {
		candidate, err := a.Analyze(ctx, spec, item)
		if err != nil || candidate == nil {
			continue
		}
		leads++
		if leads <= 3 {
			fmt.Printf("   📝 [%s %.2f] %s\n", candidate.Tier, candidate.TotalScore, truncate(item.Content(), 80))
		}
	}
	fmt.Printf("   %d possible leads\n", leads)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
