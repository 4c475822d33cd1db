package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EntitySink              = NopEntitySink{}
	_ Listener                = ListenerFunc(nil)
	_ Listener                = (*PresenceJournalListener)(nil)
	_ PresenceJournal         = (*MemoryPresenceJournal)(nil)
	_ PresenceReader          = (*MemoryPresenceJournal)(nil)
	_ PresenceRetentionPruner = (*MemoryPresenceJournal)(nil)
	_ PresenceJournal         = (*QueuedPresenceJournal)(nil)
	_ ConfigProvider          = (*CfgxConfigProvider)(nil)
	_ OptionsResolver         = GoOptionsResolver{}
	_ RawConfigLoader         = YAMLConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
