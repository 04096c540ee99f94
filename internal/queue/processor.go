package queue

import (
	"context"
	"fmt"

	"github.com/dahshury/clinic-whatsapp-bot/internal/llm"
	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/internal/whatsapp"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// Responder produces the assistant's reply for one inbound message.
type Responder interface {
	Respond(ctx context.Context, waID, displayName, userText string) (llm.Reply, error)
}

// TextSender delivers the reply back over WhatsApp.
type TextSender interface {
	SendText(ctx context.Context, waID, body string) (string, error)
}

// Customers registers the sender on first contact.
type Customers interface {
	GetOrCreate(ctx context.Context, waID, name string) (store.Customer, error)
}

// MessageProcessor turns a queued webhook payload into an assistant reply.
type MessageProcessor struct {
	responder Responder
	sender    TextSender
	customers Customers
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

func NewMessageProcessor(responder Responder, sender TextSender, customers Customers, m *metrics.Metrics, logger *logging.Logger) *MessageProcessor {
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MessageProcessor{
		responder: responder,
		sender:    sender,
		customers: customers,
		metrics:   m,
		logger:    logger,
	}
}

// Process parses the payload, keeps the customer registry current, runs the
// assistant and sends the reply. Errors bubble up so the pool can retry.
func (p *MessageProcessor) Process(ctx context.Context, item store.QueueItem) error {
	inbound, isStatus, err := whatsapp.ParseWebhook(item.Payload)
	if err != nil {
		// Malformed payloads never become processable; swallow after logging.
		p.logger.Warn("dropping unparseable queue item", "id", item.ID, "error", err)
		return nil
	}
	if isStatus {
		return nil
	}

	customer, err := p.customers.GetOrCreate(ctx, inbound.WaID, inbound.Name)
	if err != nil {
		return fmt.Errorf("queue: register customer: %w", err)
	}
	if customer.IsBlocked {
		p.logger.Info("ignoring message from blocked customer", "wa_id", inbound.WaID)
		return nil
	}

	if inbound.Type != "text" || inbound.Text == "" {
		p.logger.Info("skipping unsupported message type", "wa_id", inbound.WaID, "type", inbound.Type)
		return nil
	}

	name := customer.Name
	if name == "" {
		name = inbound.Name
	}
	reply, err := p.responder.Respond(ctx, inbound.WaID, name, inbound.Text)
	if err != nil {
		return fmt.Errorf("queue: respond to %s: %w", inbound.WaID, err)
	}

	if _, err := p.sender.SendText(ctx, inbound.WaID, reply.Text); err != nil {
		return fmt.Errorf("queue: deliver reply to %s: %w", inbound.WaID, err)
	}
	return nil
}
