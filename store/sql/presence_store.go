package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-peerlink/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PresenceStore persists presence journal entries.
type PresenceStore struct {
	db   *bun.DB
	repo repository.Repository[*presenceEntryRecord]
	now  func() time.Time
}

func NewPresenceStore(db *bun.DB) (*PresenceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*presenceEntryRecord](db, presenceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid presence repository wiring: %w", err)
		}
	}
	return &PresenceStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *PresenceStore) Record(ctx context.Context, entry core.PresenceEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: presence store is not configured")
	}
	if strings.TrimSpace(string(entry.Event)) == "" {
		return fmt.Errorf("sqlstore: presence event is required")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	occurredAt := entry.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	record := &presenceEntryRecord{
		ID:         id,
		SessionID:  strings.TrimSpace(entry.SessionID),
		LocalID:    strings.TrimSpace(string(entry.LocalID)),
		PeerID:     strings.TrimSpace(string(entry.PeerID)),
		App:        strings.TrimSpace(entry.App),
		Room:       strings.TrimSpace(entry.Room),
		Event:      strings.TrimSpace(string(entry.Event)),
		Metadata:   copyAnyMap(entry.Metadata),
		OccurredAt: occurredAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// List returns entries newest first.
func (s *PresenceStore) List(ctx context.Context, filter core.PresenceFilter) (core.PresencePage, error) {
	if s == nil || s.repo == nil {
		return core.PresencePage{}, fmt.Errorf("sqlstore: presence store is not configured")
	}
	filter = core.NormalizePresenceFilter(filter)
	offset := (filter.Page - 1) * filter.PerPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("occurred_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(filter.PerPage, offset),
	}
	if filter.App != "" {
		selectors = append(selectors, repository.SelectBy("app", "=", filter.App))
	}
	if filter.Room != "" {
		selectors = append(selectors, repository.SelectBy("room", "=", filter.Room))
	}
	if filter.PeerID != "" {
		selectors = append(selectors, repository.SelectBy("peer_id", "=", string(filter.PeerID)))
	}
	if event := strings.TrimSpace(string(filter.Event)); event != "" {
		selectors = append(selectors, repository.SelectBy("event", "=", event))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.PresencePage{}, err
	}
	items := make([]core.PresenceEntry, 0, len(records))
	for _, record := range records {
		items = append(items, presenceRecordToDomain(record))
	}
	return core.PresencePage{
		Items:   items,
		Page:    filter.Page,
		PerPage: filter.PerPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// Prune drops entries older than policy.TTL, then trims the oldest rows
// beyond policy.RowCap.
func (s *PresenceStore) Prune(ctx context.Context, policy core.PresenceRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: presence store is not configured")
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*presenceEntryRecord)(nil)).
			Where("occurred_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*presenceEntryRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM "+presenceTable+" WHERE id IN (SELECT id FROM "+presenceTable+" ORDER BY occurred_at ASC, id ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func presenceRecordToDomain(record *presenceEntryRecord) core.PresenceEntry {
	if record == nil {
		return core.PresenceEntry{}
	}
	return core.PresenceEntry{
		ID:         record.ID,
		SessionID:  record.SessionID,
		LocalID:    core.PeerID(record.LocalID),
		PeerID:     core.PeerID(record.PeerID),
		App:        record.App,
		Room:       record.Room,
		Event:      core.EventType(record.Event),
		Metadata:   copyAnyMap(record.Metadata),
		OccurredAt: record.OccurredAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
