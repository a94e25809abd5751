// Package notify relays outbox events: each event is published to the event
// bus and, for bookings and status changes, turned into shop and customer
// notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vsrepair/booking-service/internal/events"
	"vsrepair/booking-service/internal/metrics"
	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"

	"go.uber.org/zap"
)

const consumerName = "notify"

type Config struct {
	BatchSize   int
	ShopEmail   string
	CountryCode string
}

type Worker struct {
	store       store.OutboxStore
	publisher   events.Publisher
	email       Provider
	sms         Provider
	batchSize   int
	shopEmail   string
	countryCode string
	log         *zap.Logger
}

func New(st store.OutboxStore, publisher events.Publisher, email, sms Provider, cfg Config, log *zap.Logger) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if email == nil {
		email = noopProvider{}
	}
	if sms == nil {
		sms = noopProvider{}
	}
	countryCode := cfg.CountryCode
	if countryCode == "" {
		countryCode = "+91"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		store:       st,
		publisher:   publisher,
		email:       email,
		sms:         sms,
		batchSize:   batch,
		shopEmail:   cfg.ShopEmail,
		countryCode: countryCode,
		log:         log,
	}
}

// Run drains one batch after the stored offset. A publish failure stops the
// batch so the event is retried on the next run; notification failures are
// logged and counted but do not hold the offset back.
func (w *Worker) Run(ctx context.Context) error {
	last, err := w.store.GetLastOffset(ctx, consumerName)
	if err != nil {
		return err
	}

	batch, err := w.store.ListOutboxEvents(ctx, last, w.batchSize)
	if err != nil {
		return err
	}

	processed := last
	var publishErr error
	for _, event := range batch {
		if err := w.publisher.Publish(ctx, event); err != nil {
			publishErr = fmt.Errorf("publish event %d: %w", event.Seq, err)
			break
		}
		if err := w.processEvent(ctx, event); err != nil {
			w.log.Warn("notification processing failed", zap.Int64("seq", event.Seq), zap.String("type", event.Type), zap.Error(err))
		}
		metrics.OutboxRelayed.WithLabelValues(event.Type).Inc()
		processed = event.Seq
	}

	if processed != last {
		if err := w.store.UpdateOffset(ctx, consumerName, processed); err != nil {
			return err
		}
	}
	return publishErr
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	switch event.Type {
	case store.EventServiceRequestCreated:
		var request models.ServiceRequest
		if err := json.Unmarshal(event.Payload, &request); err != nil {
			return err
		}
		if w.shopEmail != "" {
			w.send(ctx, ChannelEmail, w.email, Message{
				Recipient: w.shopEmail,
				Subject:   fmt.Sprintf("New service request #%d: %s", request.ID, request.ApplianceType),
				Body:      bookingSummary(request),
			})
		}
		if phone := w.e164(request.Phone); phone != "" {
			w.send(ctx, ChannelSMS, w.sms, Message{
				Recipient: phone,
				Body:      fmt.Sprintf("VS Appliances: we received your request #%d for %s. We will call you to confirm the visit.", request.ID, request.ApplianceType),
			})
		}
	case store.EventServiceRequestStatusChanged:
		var payload store.StatusChangedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if payload.PreviousStatus == payload.Request.Status {
			return nil
		}
		if phone := w.e164(payload.Request.Phone); phone != "" {
			w.send(ctx, ChannelSMS, w.sms, Message{
				Recipient: phone,
				Body:      fmt.Sprintf("VS Appliances: your request #%d is now %s.", payload.Request.ID, statusLabel(payload.Request.Status)),
			})
		}
	}
	return nil
}

func (w *Worker) send(ctx context.Context, channel string, provider Provider, msg Message) {
	if err := provider.Send(ctx, msg); err != nil {
		metrics.NotificationsSent.WithLabelValues(channel, "failed").Inc()
		w.log.Warn("notification failed", zap.String("channel", channel), zap.String("recipient", msg.Recipient), zap.Error(err))
		return
	}
	metrics.NotificationsSent.WithLabelValues(channel, "sent").Inc()
}

// e164 turns a stored 10-digit number into an international one.
func (w *Worker) e164(phone string) string {
	phone = strings.TrimSpace(phone)
	switch {
	case phone == "":
		return ""
	case strings.HasPrefix(phone, "+"):
		return phone
	default:
		return w.countryCode + phone
	}
}

func bookingSummary(request models.ServiceRequest) string {
	lines := []string{
		fmt.Sprintf("Request: #%d", request.ID),
		fmt.Sprintf("Name: %s", request.Name),
		fmt.Sprintf("Phone: %s", request.Phone),
		fmt.Sprintf("Email: %s", request.Email),
		fmt.Sprintf("City: %s %s", request.City, request.PostalCode),
		fmt.Sprintf("Appliance: %s %s", request.ApplianceType, request.Brand),
		fmt.Sprintf("Appliance age: %s", request.ApplianceAge),
		fmt.Sprintf("Preferred time: %s", request.PreferredTime),
		fmt.Sprintf("Message: %s", request.Message),
	}
	return strings.Join(lines, "\n")
}

func statusLabel(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				w.log.Error("outbox relay error", zap.Error(err))
			}
		}
	}
}
