package anki

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/models"
)

// notesInfoBatchSize bounds one notesInfo call; AnkiConnect serializes the
// whole result in memory, so very large decks are fetched in chunks.
const notesInfoBatchSize = 200

// CardSource provides read access to cards living outside the store.
type CardSource interface {
	GetCards(ctx context.Context, deckFilter string) ([]models.Card, error)
}

// NoteSource is the minimal AnkiConnect surface the sync service needs.
type NoteSource interface {
	Version(ctx context.Context) (int, error)
	DeckNames(ctx context.Context) ([]string, error)
	FindNotesInDeck(ctx context.Context, deckName string) ([]int64, error)
	NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error)
}

// CardUpserter persists synced cards.
type CardUpserter interface {
	Upsert(ctx context.Context, req *models.UpsertCardRequest) (*models.Card, error)
}

// JobEnqueuer schedules embedding generation for synced cards.
type JobEnqueuer interface {
	EnqueueCard(ctx context.Context, cardID uuid.UUID, force bool) error
}

// SyncService pulls notes from AnkiConnect, upserts them as cards, and
// enqueues embedding jobs. Per-note failures are counted, not fatal, so one
// malformed note cannot abort a deck sync.
type SyncService struct {
	notes    NoteSource
	cards    CardUpserter
	enqueuer JobEnqueuer
	logger   *slog.Logger
}

// SyncParams configures SyncService. Enqueuer may be nil (sync without
// embedding scheduling); Logger defaults to slog.Default().
type SyncParams struct {
	Notes    NoteSource
	Cards    CardUpserter
	Enqueuer JobEnqueuer
	Logger   *slog.Logger
}

// NewSyncService creates a SyncService.
func NewSyncService(p SyncParams) *SyncService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncService{
		notes:    p.Notes,
		cards:    p.Cards,
		enqueuer: p.Enqueuer,
		logger:   logger,
	}
}

// DeckSyncResult summarizes one deck sync.
type DeckSyncResult struct {
	DeckName   string `json:"deck_name"`
	NotesFound int    `json:"notes_found"`
	Synced     int    `json:"synced"`
	Failed     int    `json:"failed"`
	Enqueued   int    `json:"enqueued"`
}

// Ping verifies AnkiConnect is reachable and speaking a known protocol version.
func (s *SyncService) Ping(ctx context.Context) error {
	version, err := s.notes.Version(ctx)
	if err != nil {
		return fmt.Errorf("anki-connect unreachable: %w", err)
	}

	if version < apiVersion {
		return fmt.Errorf("anki-connect version %d is older than required %d", version, apiVersion)
	}

	return nil
}

// SyncDeck pulls every note in the deck, upserts cards, and enqueues
// embedding jobs for them.
func (s *SyncService) SyncDeck(ctx context.Context, deckName string) (*DeckSyncResult, error) {
	noteIDs, err := s.notes.FindNotesInDeck(ctx, deckName)
	if err != nil {
		return nil, fmt.Errorf("find notes in %q: %w", deckName, err)
	}

	result := &DeckSyncResult{DeckName: deckName, NotesFound: len(noteIDs)}

	for start := 0; start < len(noteIDs); start += notesInfoBatchSize {
		end := min(start+notesInfoBatchSize, len(noteIDs))

		notes, err := s.notes.NotesInfo(ctx, noteIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetch notes info for %q: %w", deckName, err)
		}

		for i := range notes {
			s.syncNote(ctx, &notes[i], deckName, result)
		}
	}

	s.logger.Info("deck sync finished",
		"deck_name", deckName,
		"notes_found", result.NotesFound,
		"synced", result.Synced,
		"failed", result.Failed,
		"enqueued", result.Enqueued,
	)

	return result, nil
}

// syncNote upserts one note and enqueues its embedding job, recording the
// outcome in result.
func (s *SyncService) syncNote(ctx context.Context, note *NoteInfo, deckName string, result *DeckSyncResult) {
	card, err := s.cards.Upsert(ctx, note.ToUpsertRequest(deckName))
	if err != nil {
		result.Failed++
		s.logger.Error("sync: upsert card failed",
			"deck_name", deckName,
			"anki_note_id", note.NoteID,
			"error", err,
		)

		return
	}

	result.Synced++

	if s.enqueuer == nil {
		return
	}

	if err := s.enqueuer.EnqueueCard(ctx, card.ID, false); err != nil {
		// The card is stored; the backfill command picks up missed jobs.
		s.logger.Warn("sync: enqueue embedding job failed",
			"card_id", card.ID,
			"error", err,
		)

		return
	}

	result.Enqueued++
}

// SyncAll syncs every deck AnkiConnect reports.
func (s *SyncService) SyncAll(ctx context.Context) ([]DeckSyncResult, error) {
	decks, err := s.notes.DeckNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}

	results := make([]DeckSyncResult, 0, len(decks))
	for _, deck := range decks {
		result, err := s.SyncDeck(ctx, deck)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}

	return results, nil
}

// GetCards fetches notes from AnkiConnect as unsaved cards. An empty
// deckFilter reads every deck. The returned cards have no store identity;
// callers wanting persistence use SyncDeck instead.
func (s *SyncService) GetCards(ctx context.Context, deckFilter string) ([]models.Card, error) {
	decks := []string{deckFilter}
	if deckFilter == "" {
		var err error
		decks, err = s.notes.DeckNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("list decks: %w", err)
		}
	}

	var cards []models.Card

	for _, deck := range decks {
		noteIDs, err := s.notes.FindNotesInDeck(ctx, deck)
		if err != nil {
			return nil, fmt.Errorf("find notes in %q: %w", deck, err)
		}

		for start := 0; start < len(noteIDs); start += notesInfoBatchSize {
			end := min(start+notesInfoBatchSize, len(noteIDs))

			notes, err := s.notes.NotesInfo(ctx, noteIDs[start:end])
			if err != nil {
				return nil, fmt.Errorf("fetch notes info for %q: %w", deck, err)
			}

			for i := range notes {
				cards = append(cards, noteToCard(&notes[i], deck))
			}
		}
	}

	return cards, nil
}

func noteToCard(note *NoteInfo, deckName string) models.Card {
	req := note.ToUpsertRequest(deckName)

	return models.Card{
		AnkiNoteID: req.AnkiNoteID,
		DeckName:   req.DeckName,
		ModelName:  req.ModelName,
		FrontText:  req.FrontText,
		BackText:   req.BackText,
		Tags:       req.Tags,
	}
}

var _ CardSource = (*SyncService)(nil)
