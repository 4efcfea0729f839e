// Package syncer reconciles the desired item set of a job against the chat
// messages already posted for it.
package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/alpinn/mirrorbot/internal/chat"
	"github.com/alpinn/mirrorbot/internal/differ"
	"github.com/alpinn/mirrorbot/internal/store"
	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Synchronizer applies edit/create/delete operations so the channel's
// messages mirror the current item set. Re-running it on unchanged input
// performs no chat operations.
type Synchronizer struct {
	store   store.Store
	surface chat.Surface
	logger  zerolog.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(st store.Store, surface chat.Surface, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:   st,
		surface: surface,
		logger:  logger.With().Str("component", "Synchronizer").Logger(),
	}
}

// Reconcile brings the job's channel in line with items. The pass is
// best-effort: a failure on one key is logged and the remaining keys are
// still processed. The store ends up holding exactly the records that
// survived the pass.
func (s *Synchronizer) Reconcile(ctx context.Context, job store.Job, items []differ.Item) error {
	tracked, err := s.store.GetTrackedMessages(ctx, job)
	if err != nil {
		return err
	}

	trackedByKey := make(map[string]store.TrackedMessage, len(tracked))
	for _, msg := range tracked {
		trackedByKey[msg.ItemKey] = msg
	}

	desired := make(map[string]struct{}, len(items))
	surviving := make([]store.TrackedMessage, 0, len(items))
	var edited, created, deleted, unchanged int

	for _, item := range items {
		desired[item.Key] = struct{}{}

		previous, known := trackedByKey[item.Key]
		switch {
		case known && previous.Signature == item.Signature:
			unchanged++
			surviving = append(surviving, previous)

		case known:
			record, ok := s.editItem(ctx, job, previous, item)
			if ok {
				edited++
			}
			if record != nil {
				surviving = append(surviving, *record)
			}

		default:
			record := s.postItem(ctx, job, item)
			if record != nil {
				created++
				surviving = append(surviving, *record)
			}
		}
	}

	for _, msg := range tracked {
		if _, wanted := desired[msg.ItemKey]; wanted {
			continue
		}
		if s.deleteStale(ctx, job, msg) {
			deleted++
		} else {
			// Delete failed and the message may still exist: keep the
			// record so the next pass retries the removal.
			surviving = append(surviving, msg)
		}
	}

	if err := s.store.PutTrackedMessages(ctx, job, surviving); err != nil {
		return err
	}

	if edited+created+deleted > 0 {
		s.logger.Info().
			Str("endpoint", job.Endpoint).
			Str("channel_id", job.ChannelID).
			Int("edited", edited).
			Int("created", created).
			Int("deleted", deleted).
			Int("unchanged", unchanged).
			Msg("Reconciled channel")
	} else {
		s.logger.Debug().
			Str("endpoint", job.Endpoint).
			Str("channel_id", job.ChannelID).
			Int("unchanged", unchanged).
			Msg("Channel already in sync")
	}
	return nil
}

// editItem updates a changed item in place. When the tracked message has
// vanished, a replacement is posted and bound under the same key. Returns
// the surviving record (nil when the key produced nothing usable) and
// whether a chat operation succeeded.
func (s *Synchronizer) editItem(ctx context.Context, job store.Job, previous store.TrackedMessage, item differ.Item) (*store.TrackedMessage, bool) {
	s.logChange(job, previous.Content, item)

	msg := chat.Message{Content: item.Content, ImageURL: item.ImageURL}
	err := s.surface.Edit(ctx, job.ChannelID, previous.MessageID, msg)
	if errors.Is(err, chat.ErrMessageNotFound) {
		s.logger.Warn().
			Str("endpoint", job.Endpoint).
			Str("item_key", item.Key).
			Str("message_id", previous.MessageID).
			Msg("Tracked message vanished, posting replacement")
		record := s.postItem(ctx, job, item)
		return record, record != nil
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("endpoint", job.Endpoint).
			Str("item_key", item.Key).
			Msg("Failed to edit message, keeping previous record")
		return &previous, false
	}

	record := s.record(job, item, previous.MessageID)
	return &record, true
}

// postItem posts a new message for the item and returns its record, or nil
// when the post failed.
func (s *Synchronizer) postItem(ctx context.Context, job store.Job, item differ.Item) *store.TrackedMessage {
	msg := chat.Message{Content: item.Content, ImageURL: item.ImageURL}
	messageID, err := s.surface.Post(ctx, job.ChannelID, msg)
	if err != nil {
		s.logger.Error().Err(err).
			Str("endpoint", job.Endpoint).
			Str("item_key", item.Key).
			Msg("Failed to post message")
		return nil
	}
	record := s.record(job, item, messageID)
	return &record
}

// deleteStale removes the chat message of a key that disappeared from the
// item set. A vanished message counts as removed.
func (s *Synchronizer) deleteStale(ctx context.Context, job store.Job, msg store.TrackedMessage) bool {
	err := s.surface.Delete(ctx, job.ChannelID, msg.MessageID)
	if err != nil && !errors.Is(err, chat.ErrMessageNotFound) {
		s.logger.Error().Err(err).
			Str("endpoint", job.Endpoint).
			Str("item_key", msg.ItemKey).
			Msg("Failed to delete stale message")
		return false
	}
	s.logger.Info().
		Str("endpoint", job.Endpoint).
		Str("item_key", msg.ItemKey).
		Msg("Deleted stale message")
	return true
}

func (s *Synchronizer) record(job store.Job, item differ.Item, messageID string) store.TrackedMessage {
	return store.TrackedMessage{
		Endpoint:  job.Endpoint,
		ChannelID: job.ChannelID,
		ItemKey:   item.Key,
		MessageID: messageID,
		Signature: item.Signature,
		Content:   item.Content,
		UpdatedAt: time.Now().UTC(),
	}
}

// logChange summarizes what changed between the previous and new content.
func (s *Synchronizer) logChange(job store.Job, previousContent string, item differ.Item) {
	if previousContent == "" {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(previousContent, item.Content, false)

	var inserted, removed int
	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len(diff.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(diff.Text)
		}
	}
	s.logger.Debug().
		Str("endpoint", job.Endpoint).
		Str("item_key", item.Key).
		Int("chars_inserted", inserted).
		Int("chars_removed", removed).
		Msg("Item content changed")
}

// Clear deletes the chat messages tracked in the scope and drops their
// records. Job bindings are untouched.
func (s *Synchronizer) Clear(ctx context.Context, scope store.ClearScope) (int, error) {
	jobs, err := s.store.ListBindings(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range jobs {
		if scope.ChannelID != "" && job.ChannelID != scope.ChannelID {
			continue
		}
		tracked, err := s.store.GetTrackedMessages(ctx, job)
		if err != nil {
			s.logger.Error().Err(err).
				Str("endpoint", job.Endpoint).
				Str("channel_id", job.ChannelID).
				Msg("Failed to load tracked messages for clear")
			continue
		}
		for _, msg := range tracked {
			err := s.surface.Delete(ctx, msg.ChannelID, msg.MessageID)
			if err != nil && !errors.Is(err, chat.ErrMessageNotFound) {
				s.logger.Warn().Err(err).
					Str("message_id", msg.MessageID).
					Msg("Failed to delete message during clear")
				continue
			}
			removed++
		}
	}

	if err := s.store.ClearTrackedMessages(ctx, scope); err != nil {
		return removed, err
	}
	s.logger.Info().
		Str("channel_id", scope.ChannelID).
		Int("removed", removed).
		Msg("Cleared tracked messages")
	return removed, nil
}
