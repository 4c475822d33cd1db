package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PresenceJournalListener records session notifications as presence entries.
// Journal failures are logged and never reach the session.
type PresenceJournalListener struct {
	journal   PresenceJournal
	sessionID string
	logger    Logger
}

func NewPresenceJournalListener(journal PresenceJournal, sessionID string, logger Logger) *PresenceJournalListener {
	return &PresenceJournalListener{
		journal:   journal,
		sessionID: strings.TrimSpace(sessionID),
		logger:    logger,
	}
}

func (l *PresenceJournalListener) OnEvent(ctx context.Context, event Event) {
	if l == nil || l.journal == nil {
		return
	}
	entry := NewPresenceEntry(l.sessionID, event)
	if err := l.journal.Record(ctx, entry); err != nil && l.logger != nil {
		l.logger.Error("presence journal record failed",
			"event_type", string(event.Type),
			"peer_id", string(event.PeerID),
			"error", err.Error(),
		)
	}
}

func NewPresenceEntry(sessionID string, event Event) PresenceEntry {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return PresenceEntry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		LocalID:    event.LocalID,
		PeerID:     event.PeerID,
		App:        event.App,
		Room:       event.Room,
		Event:      event.Type,
		OccurredAt: occurredAt.UTC(),
	}
}

// MemoryPresenceJournal keeps entries in process. It serves as the journal
// and reader for tests and single-process setups.
type MemoryPresenceJournal struct {
	mu      sync.RWMutex
	entries []PresenceEntry
}

func NewMemoryPresenceJournal() *MemoryPresenceJournal {
	return &MemoryPresenceJournal{entries: make([]PresenceEntry, 0)}
}

func (j *MemoryPresenceJournal) Record(_ context.Context, entry PresenceEntry) error {
	if j == nil {
		return notConfiguredError("core: presence journal is nil")
	}
	if err := validatePresenceEntry(entry); err != nil {
		return err
	}
	entry.Metadata = copyAnyMap(entry.Metadata)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *MemoryPresenceJournal) List(_ context.Context, filter PresenceFilter) (PresencePage, error) {
	if j == nil {
		return PresencePage{}, notConfiguredError("core: presence journal is nil")
	}
	filter = NormalizePresenceFilter(filter)
	j.mu.RLock()
	matched := make([]PresenceEntry, 0, len(j.entries))
	for _, entry := range j.entries {
		if filter.Matches(entry) {
			matched = append(matched, entry)
		}
	}
	j.mu.RUnlock()

	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].OccurredAt.After(matched[b].OccurredAt)
	})
	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	items := make([]PresenceEntry, 0, end-start)
	for _, entry := range matched[start:end] {
		entry.Metadata = copyAnyMap(entry.Metadata)
		items = append(items, entry)
	}
	return PresencePage{
		Items:   items,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   total,
		HasNext: end < total,
	}, nil
}

func (j *MemoryPresenceJournal) Prune(_ context.Context, policy PresenceRetentionPolicy) (int, error) {
	if j == nil {
		return 0, notConfiguredError("core: presence journal is nil")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	before := len(j.entries)
	kept := j.entries[:0]
	cutoff := time.Time{}
	if policy.TTL > 0 {
		cutoff = time.Now().UTC().Add(-policy.TTL)
	}
	for _, entry := range j.entries {
		if !cutoff.IsZero() && entry.OccurredAt.Before(cutoff) {
			continue
		}
		kept = append(kept, entry)
	}
	if policy.RowCap > 0 && len(kept) > policy.RowCap {
		sort.SliceStable(kept, func(a, b int) bool {
			return kept[a].OccurredAt.Before(kept[b].OccurredAt)
		})
		kept = kept[len(kept)-policy.RowCap:]
	}
	j.entries = kept
	return before - len(kept), nil
}

const (
	defaultPresencePerPage = 50
	maxPresencePerPage     = 500
)

func NormalizePresenceFilter(filter PresenceFilter) PresenceFilter {
	filter.App = strings.TrimSpace(filter.App)
	filter.Room = strings.TrimSpace(filter.Room)
	filter.PeerID = PeerID(strings.TrimSpace(string(filter.PeerID)))
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = defaultPresencePerPage
	}
	if filter.PerPage > maxPresencePerPage {
		filter.PerPage = maxPresencePerPage
	}
	return filter
}

func (f PresenceFilter) Matches(entry PresenceEntry) bool {
	if f.App != "" && entry.App != f.App {
		return false
	}
	if f.Room != "" && entry.Room != f.Room {
		return false
	}
	if f.PeerID != "" && entry.PeerID != f.PeerID {
		return false
	}
	if f.Event != "" && entry.Event != f.Event {
		return false
	}
	if f.From != nil && entry.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && entry.OccurredAt.After(*f.To) {
		return false
	}
	return true
}

func validatePresenceEntry(entry PresenceEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return badInputError("core: presence entry id is required")
	}
	if strings.TrimSpace(string(entry.Event)) == "" {
		return badInputError("core: presence entry event is required")
	}
	return nil
}
