package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// clientMessage is every frame the hub reads.
type clientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

const opTimeout = 15 * time.Second

// handleClientMessage dispatches one inbound frame. Queries and commands are
// answered with <type>_ack or <type>_nack on the same connection.
func (h *Hub) handleClientMessage(ctx context.Context, c *client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply("error", nil, "malformed message")
		return
	}

	switch msg.Type {
	case "ping":
		c.reply("pong", nil, "")
		return
	case "set_filter":
		c.setFilter(stringSlice(msg.Data["update_types"]), stringSlice(msg.Data["entity_ids"]))
		c.reply("set_filter_ack", nil, "")
		return
	}

	backend := h.getBackend()
	if backend == nil {
		c.reply(msg.Type+"_nack", nil, "backend unavailable")
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		data map[string]any
		err  error
	)
	switch msg.Type {
	case "get_snapshot":
		data, err = backend.Snapshot(opCtx)
	case "get_document":
		data, err = backend.Document(opCtx, asString(msg.Data["wa_id"]))
	case "get_customer":
		data, err = backend.Customer(opCtx, asString(msg.Data["wa_id"]))
	case "modify_reservation":
		data, err = backend.ModifyReservation(opCtx, msg.Data)
	case "cancel_reservation":
		data, err = backend.CancelReservation(opCtx, msg.Data)
	case "conversation_send_message":
		err = backend.SendSecretaryMessage(opCtx, asString(msg.Data["wa_id"]), asString(msg.Data["message"]))
	case "vacation_update":
		data, err = backend.UpdateVacation(opCtx, msg.Data)
	default:
		c.reply(msg.Type+"_nack", nil, "unknown message type")
		return
	}

	if err != nil {
		h.logger.Warn("hub op failed", "op", msg.Type, "error", err)
		c.reply(msg.Type+"_nack", nil, err.Error())
		return
	}
	c.reply(msg.Type+"_ack", data, "")

	// Commands that change shared state fan out to the other tabs too.
	switch msg.Type {
	case "vacation_update":
		h.Broadcast("vacation_period_updated", data, nil)
	case "conversation_send_message":
		waID := asString(msg.Data["wa_id"])
		h.Broadcast("conversation_updated", map[string]any{
			"wa_id":   waID,
			"role":    "secretary",
			"message": asString(msg.Data["message"]),
		}, []string{waID})
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
