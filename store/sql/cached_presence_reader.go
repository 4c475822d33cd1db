package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-peerlink/core"
)

const presencePageCacheKeyPrefix = "go-peerlink::presence_page::v1"

// PresenceBackend is the store contract the cache sits in front of.
type PresenceBackend interface {
	core.PresenceJournal
	core.PresenceReader
	core.PresenceRetentionPruner
}

// CachedPresenceStore serves repeated List calls from cache. Writes bump a
// generation counter that is part of every key, so stale pages are never read.
type CachedPresenceStore struct {
	base       PresenceBackend
	cache      repositorycache.CacheService
	generation atomic.Uint64
}

func NewCachedPresenceStore(
	base PresenceBackend,
	cacheService repositorycache.CacheService,
) (*CachedPresenceStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base presence store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: presence cache service is required")
	}
	return &CachedPresenceStore{base: base, cache: cacheService}, nil
}

// PresencePageCacheKey returns
// go-peerlink::presence_page::v1::<generation>::<app>::<room>::<peer>::<event>::<from>::<to>::<page>::<per_page>
// with each segment URL-path escaped after filter normalization.
func PresencePageCacheKey(generation uint64, filter core.PresenceFilter) string {
	filter = core.NormalizePresenceFilter(filter)
	segments := []string{
		strconv.FormatUint(generation, 10),
		filter.App,
		filter.Room,
		string(filter.PeerID),
		string(filter.Event),
		timeSegment(filter.From),
		timeSegment(filter.To),
		strconv.Itoa(filter.Page),
		strconv.Itoa(filter.PerPage),
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{presencePageCacheKeyPrefix}, segments...), "::")
}

func (s *CachedPresenceStore) Record(ctx context.Context, entry core.PresenceEntry) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached presence store is not configured")
	}
	if err := s.base.Record(ctx, entry); err != nil {
		return err
	}
	s.generation.Add(1)
	return nil
}

func (s *CachedPresenceStore) List(ctx context.Context, filter core.PresenceFilter) (core.PresencePage, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PresencePage{}, fmt.Errorf("sqlstore: cached presence store is not configured")
	}
	filter = core.NormalizePresenceFilter(filter)
	cacheKey := PresencePageCacheKey(s.generation.Load(), filter)

	page, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.PresencePage, error) {
		fetched, fetchErr := s.base.List(ctx, filter)
		if fetchErr != nil {
			return core.PresencePage{}, fetchErr
		}
		return clonePresencePage(fetched), nil
	})
	if err != nil {
		return core.PresencePage{}, err
	}
	return clonePresencePage(page), nil
}

func (s *CachedPresenceStore) Prune(ctx context.Context, policy core.PresenceRetentionPolicy) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached presence store is not configured")
	}
	deleted, err := s.base.Prune(ctx, policy)
	if deleted > 0 {
		s.generation.Add(1)
	}
	return deleted, err
}

func clonePresencePage(page core.PresencePage) core.PresencePage {
	cloned := page
	cloned.Items = make([]core.PresenceEntry, 0, len(page.Items))
	for _, item := range page.Items {
		item.Metadata = copyAnyMap(item.Metadata)
		cloned.Items = append(cloned.Items, item)
	}
	return cloned
}

func timeSegment(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.UTC().Format(time.RFC3339Nano)
}

var _ PresenceBackend = (*CachedPresenceStore)(nil)
