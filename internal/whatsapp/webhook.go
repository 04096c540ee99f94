package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound is one customer message extracted from a webhook delivery.
type Inbound struct {
	MessageID string
	WaID      string
	Name      string
	Type      string // text, audio, image, ...
	Text      string
}

// webhookPayload mirrors the Cloud API delivery envelope.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook decodes a webhook body. isStatus is true for delivery/read
// receipts, which are acknowledged without any work.
func ParseWebhook(body []byte) (inbound Inbound, isStatus bool, err error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Inbound{}, false, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}

	sawStatus := false
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			if len(v.Statuses) > 0 {
				sawStatus = true
			}
			for _, msg := range v.Messages {
				in := Inbound{
					MessageID: msg.ID,
					WaID:      msg.From,
					Type:      msg.Type,
					Text:      strings.TrimSpace(msg.Text.Body),
				}
				for _, c := range v.Contacts {
					if c.WaID == msg.From {
						in.Name = c.Profile.Name
					}
				}
				return in, false, nil
			}
		}
	}
	if sawStatus {
		return Inbound{}, true, nil
	}
	return Inbound{}, false, fmt.Errorf("whatsapp: webhook carries no message")
}
