// Package ordering defines the total orders over a session's pending entries.
// Both orders are pure functions of entry fields and are safe to re-run on
// unchanged input.
package ordering

import (
	"sort"

	"github.com/crowdjuke/crowdjuke/internal/models"
)

// PlaybackOrder returns the order in which entries should play: display
// priority first, then vote tally (highest first), then age, then id as the
// final deterministic tie-break. Only pending entries participate; everything
// else is filtered out.
func PlaybackOrder(entries []*models.QueueEntry) []*models.QueueEntry {
	out := pending(entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DisplayPriority != b.DisplayPriority {
			return a.DisplayPriority < b.DisplayPriority
		}
		if a.VoteTally != b.VoteTally {
			return a.VoteTally > b.VoteTally
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// DisplayOrder returns the order the audience sees. Votes do not reorder the
// visible list: once a position is paid for, only display priority and age
// matter. Votes still break playback ties among entries sharing a priority.
func DisplayOrder(entries []*models.QueueEntry) []*models.QueueEntry {
	out := pending(entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DisplayPriority != b.DisplayPriority {
			return a.DisplayPriority < b.DisplayPriority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Head returns the next entry to play, or nil if nothing is pending.
func Head(entries []*models.QueueEntry) *models.QueueEntry {
	ordered := PlaybackOrder(entries)
	if len(ordered) == 0 {
		return nil
	}
	return ordered[0]
}

func pending(entries []*models.QueueEntry) []*models.QueueEntry {
	out := make([]*models.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsPending() {
			out = append(out, e)
		}
	}
	return out
}
