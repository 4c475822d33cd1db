package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

const presenceTable = "peerlink_presence_entries"

type presenceEntryRecord struct {
	bun.BaseModel `bun:"table:peerlink_presence_entries,alias:ppe"`

	ID         string         `bun:"id,pk"`
	SessionID  string         `bun:"session_id,notnull"`
	LocalID    string         `bun:"local_id,notnull"`
	PeerID     string         `bun:"peer_id,notnull"`
	App        string         `bun:"app,notnull"`
	Room       string         `bun:"room,notnull"`
	Event      string         `bun:"event,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
