package solana

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-sniper/internal/domain"
)

// LogStream defines a restartable logs subscription.
type LogStream interface {
	// Subscribe starts the subscription and returns the event sequence.
	// The channel is closed on context cancellation or on a permanent failure (see Err).
	Subscribe(ctx context.Context, filter LogsFilter) (<-chan domain.RawEvent, error)

	// Err returns the permanent failure that ended the sequence, if any.
	Err() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
	// Commitment level for notifications (processed, confirmed, finalized).
	Commitment string
}

func (f LogsFilter) params() []interface{} {
	mentions := make(map[string]interface{})
	if len(f.Mentions) > 0 {
		mentions["mentions"] = f.Mentions
	} else {
		mentions["all"] = nil
	}
	commitment := f.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}
	return []interface{}{mentions, map[string]string{"commitment": commitment}}
}

// LogNotification represents a decoded logs subscription message.
type LogNotification struct {
	Subscription int64
	Signature    string
	Slot         int64
	Logs         []string
	Err          interface{}
}

// Failed reports whether the transaction behind the notification failed on-chain.
func (n *LogNotification) Failed() bool {
	return n.Err != nil
}

// DecodeLogsNotification decodes the raw payload of a logsNotification frame.
func DecodeLogsNotification(payload []byte) (*LogNotification, error) {
	var notif wsNotification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if notif.Method != "logsNotification" {
		return nil, fmt.Errorf("%w: unexpected method %q", domain.ErrParse, notif.Method)
	}
	if notif.Params == nil || notif.Params.Result.Value == nil {
		return nil, fmt.Errorf("%w: missing params.result.value", domain.ErrParse)
	}

	value := notif.Params.Result.Value
	out := &LogNotification{
		Subscription: notif.Params.Subscription,
		Signature:    value.Signature,
		Logs:         value.Logs,
		Err:          value.Err,
	}
	if notif.Params.Result.Context != nil {
		out.Slot = notif.Params.Result.Context.Slot
	}
	return out, nil
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope is used to route an incoming frame before full decoding.
type wsEnvelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext   `json:"context"`
	Value   *wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
