package domain

import "time"

// EventKind distinguishes stream payloads from stream control markers.
type EventKind string

const (
	// EventNotification carries a raw logsNotification payload.
	EventNotification EventKind = "NOTIFICATION"
	// EventReconnected marks a discontinuity: the stream reconnected and resubscribed.
	EventReconnected EventKind = "RECONNECTED"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// RawEvent is an opaque, timestamped message received from the log stream.
// It is discarded after classification.
type RawEvent struct {
	Seq        uint64    // stream-assigned, monotonic per process (best effort)
	Kind       EventKind // NOTIFICATION | RECONNECTED
	Payload    []byte    // raw JSON-RPC notification (nil for markers)
	ReceivedAt time.Time
	Attempt    int // reconnect attempt that produced a RECONNECTED marker
}

// IsMarker reports whether the event is a stream control marker rather than data.
func (e RawEvent) IsMarker() bool {
	return e.Kind == EventReconnected
}

// TradeSignal is the classified output of detection: a new mint worth buying.
// Never mutated after creation.
type TradeSignal struct {
	Mint       string    // unique key of the asset
	Signature  string    // source transaction signature
	Slot       int64     // slot of the source transaction
	DetectedAt time.Time // when the detector classified the event
}
