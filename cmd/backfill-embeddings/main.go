// backfill-embeddings enqueues River embedding jobs for cards that are
// missing vectors for one of the enabled variants. Run this when the API
// server is not handling backfill (e.g. one-off or scheduled). Workers in
// the API process the jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/lingodeck/hub/internal/config"
	"github.com/lingodeck/hub/internal/repository"
	"github.com/lingodeck/hub/internal/service"
	"github.com/lingodeck/hub/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	// Insert-only client: no workers registered here, the API processes jobs.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	embeddingsRepo := repository.NewEmbeddingsRepository(db)
	enqueuer := service.NewEmbeddingEnqueuer(service.EnqueuerParams{
		Inserter:    riverClient,
		MaxAttempts: cfg.EmbeddingMaxAttempts,
	})

	// Collect cards missing any enabled variant. One job per card covers all
	// variants, so union the per-variant backlogs.
	missing := make(map[uuid.UUID]struct{})

	for _, variant := range cfg.EmbeddingVariants {
		ids, err := embeddingsRepo.ListCardIDsMissingVariant(ctx, variant)
		if err != nil {
			slog.Error("Failed to list cards missing embeddings", "variant", variant.String(), "error", err)

			return exitFailure
		}

		for _, id := range ids {
			missing[id] = struct{}{}
		}
	}

	ids := make([]uuid.UUID, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}

	enqueued, err := enqueuer.EnqueueCards(ctx, ids, false)
	if err != nil {
		slog.Error("Backfill incomplete", "enqueued", enqueued, "error", err)

		return exitFailure
	}

	slog.Info("Backfill complete", "enqueued", enqueued)

	fmt.Printf("Enqueued %d embedding job(s).\n", enqueued)

	return exitSuccess
}
