package app

import (
	"context"

	"go.uber.org/zap"

	"content-hand/models"
)

var defaultQuotes = []models.Quote{
	{
		Text:   "Content is the reason search began in the first place.",
		Author: "Lee Odden",
		Role:   "CEO, TopRank Marketing",
		Tags:   []string{"seo", "search", "content marketing"},
		Active: true,
	},
	{
		Text:   "The best place to hide a dead body is page two of Google search results.",
		Author: "Brian Dean",
		Role:   "Founder, Backlinko",
		Tags:   []string{"seo", "ranking", "google"},
		Active: true,
	},
	{
		Text:   "Good content isn't about good storytelling. It's about telling a true story well.",
		Author: "Ann Handley",
		Role:   "Chief Content Officer, MarketingProfs",
		Tags:   []string{"writing", "storytelling", "content"},
		Active: true,
	},
	{
		Text:   "An investment in knowledge pays the best interest.",
		Author: "Benjamin Franklin",
		Tags:   []string{"finance", "investing", "education", "learning"},
		Active: true,
	},
}

// seedDefaultQuotes legt die Standard-Zitate an, wenn noch keine aktiven existieren.
func seedDefaultQuotes(ctx context.Context, store QuoteStore, logger *zap.Logger) {
	existing, err := store.ListActive(ctx)
	if err != nil {
		logger.Error("Failed to check quotes", zap.Error(err))
		return
	}
	if len(existing) > 0 {
		return
	}
	logger.Info("Seeding default quotes...")
	for _, q := range defaultQuotes {
		if err := store.Create(ctx, &q); err != nil {
			logger.Error("Failed to seed quote", zap.String("author", q.Author), zap.Error(err))
		}
	}
}
