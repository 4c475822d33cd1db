package sqlstore

import "github.com/goliatone/go-peerlink/core"

var (
	_ core.PresenceJournal         = (*PresenceStore)(nil)
	_ core.PresenceReader          = (*PresenceStore)(nil)
	_ core.PresenceRetentionPruner = (*PresenceStore)(nil)
	_ PresenceBackend              = (*PresenceStore)(nil)
)
