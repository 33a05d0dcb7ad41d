package domain

// StoreEventScope names a class of store mutation. The cache invalidator
// subscribes to these; the store itself never touches the cache.
type StoreEventScope string

const (
	ScopeNewEmail      StoreEventScope = "new_email"
	ScopeDeleteEmail   StoreEventScope = "delete_email"
	ScopePurgeEmail    StoreEventScope = "purge_email"
	ScopeRestoreEmail  StoreEventScope = "restore_email"
	ScopeClearAllEmail StoreEventScope = "clear_all_emails"
	ScopeNewDigest     StoreEventScope = "new_digest"
	ScopeConfigChange  StoreEventScope = "config_change"
	ScopeAll           StoreEventScope = "all"
)

// StoreEvent is emitted after a successful store mutation.
type StoreEvent struct {
	UserID int64
	Scope  StoreEventScope
}

// EventPublisher delivers store events to subscribers. Fire and forget;
// the store remains authoritative.
type EventPublisher interface {
	Publish(event StoreEvent)
}

// EventPublisherFunc adapts a function to EventPublisher.
type EventPublisherFunc func(event StoreEvent)

func (f EventPublisherFunc) Publish(event StoreEvent) { f(event) }

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(StoreEvent) {}
