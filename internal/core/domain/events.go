package domain

// EventKind identifies a lifecycle event.
type EventKind string

// Lifecycle events emitted by the sync engine and asset downloader.
const (
	EventCollectionReady      EventKind = "collection-ready"
	EventSyncStarted          EventKind = "sync-started"
	EventSyncCompleted        EventKind = "sync-completed"
	EventSyncFailed           EventKind = "sync-failed"
	EventAssetDownloadStarted EventKind = "asset-download-started"
	EventAssetDownloadFetched EventKind = "asset-download-fetched"
	EventAssetDownloadStored  EventKind = "asset-download-stored"
	EventAssetDownloadFailed  EventKind = "asset-download-failed"
)

// Event is a single lifecycle notification. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind

	// Collection is set for collection-ready.
	Collection *CollectionInfo

	// Result is set for sync-completed.
	Result *SyncResult

	// Key is the asset key for asset-download-* events.
	Key string

	// Err is set for sync-failed and asset-download-failed.
	Err error
}

// Records returns the processed records carried by sync-completed.
func (e Event) Records() []Record {
	if e.Result == nil {
		return nil
	}
	return e.Result.Records
}

// Listener receives lifecycle events. Delivery is at-least-once per
// occurrence with no replay for late subscribers.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// HandleEvent calls f(e).
func (f ListenerFunc) HandleEvent(e Event) {
	f(e)
}
