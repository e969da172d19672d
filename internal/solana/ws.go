package solana

import "context"

// WSClient is the logs subscription surface of the Solana WebSocket API.
type WSClient interface {
	// SubscribeLogs returns a channel of notifications for filter. The channel
	// survives reconnects and is closed by Close.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	Close() error
}

// LogsFilter selects transactions by mentioned accounts. An empty filter
// subscribes to all transactions.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one logsNotification payload.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
