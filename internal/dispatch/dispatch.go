// Package dispatch turns reservation lifecycle transitions into outbound
// notification events. The dispatcher publishes typed events onto the
// message bus and returns immediately; a background worker performs the
// actual delivery through the Mailer and Chat ports, so no transaction
// ever blocks on outbound I/O. Delivery is best-effort: the bus does not
// redeliver and failed sends are not retried. Chat consumers derive
// idempotency keys from (reservation id, event kind).
package dispatch

import (
	"context"
	"time"

	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// Mailer is the outbound email port. Transport lives behind it; the engine
// only supplies a template name, recipients and a rendering context.
type Mailer interface {
	Send(ctx context.Context, template string, recipients []string, data map[string]interface{}) error
}

// Chat is the outbound chat port (Meta-style template API). The
// idempotency key lets the transport drop rare duplicate deliveries.
type Chat interface {
	SendText(ctx context.Context, to, body string) error
	SendTemplate(ctx context.Context, to, name string, params map[string]string, idempotencyKey string) error
}

// EventPublisher is the slice of pkg/events the dispatcher needs.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// ClientConfirmationRequestedPayload asks the client to confirm a freshly
// created reservation.
type ClientConfirmationRequestedPayload struct {
	ReservationID string    `json:"reservationId"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ConfirmationLinkIssuedPayload carries an admin-issued chat link.
type ConfirmationLinkIssuedPayload struct {
	ReservationID string    `json:"reservationId"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ProfessionalNotificationPayload tells the assigned professional their
// reservation was confirmed by the client.
type ProfessionalNotificationPayload struct {
	ReservationID string `json:"reservationId"`
}

// ReservationCancelledPayload announces a cancellation to the client.
type ReservationCancelledPayload struct {
	ReservationID string             `json:"reservationId"`
	CancelledBy   models.CancelActor `json:"cancelledBy"`
}

// Dispatcher publishes lifecycle events. Publish failures are logged and
// swallowed: a notification must never fail the transition that caused it.
type Dispatcher struct {
	publisher EventPublisher
	logger    *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(publisher EventPublisher, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, logger: logger}
}

// ClientConfirmationRequested fires when a reservation is created through
// a channel that needs the client to confirm (not the chat channel, where
// the client just asked for the booking themselves).
func (d *Dispatcher) ClientConfirmationRequested(reservationID, token string, expiresAt time.Time) {
	d.publish(events.ReservationRequestedEvent, ClientConfirmationRequestedPayload{
		ReservationID: reservationID,
		Token:         token,
		ExpiresAt:     expiresAt,
	})
}

// ConfirmationLinkIssued fires on the admin-approval path; the link is
// delivered over chat.
func (d *Dispatcher) ConfirmationLinkIssued(reservationID, token string, expiresAt time.Time) {
	d.publish(events.ConfirmationLinkIssuedEvent, ConfirmationLinkIssuedPayload{
		ReservationID: reservationID,
		Token:         token,
		ExpiresAt:     expiresAt,
	})
}

// ClientConfirmed fires on the WAITING_CLIENT -> CONFIRMED transition and
// notifies the assigned professional.
func (d *Dispatcher) ClientConfirmed(reservationID string) {
	d.publish(events.ReservationConfirmedEvent, ProfessionalNotificationPayload{
		ReservationID: reservationID,
	})
}

// ReservationCancelled fires on any transition into CANCELLED.
func (d *Dispatcher) ReservationCancelled(reservationID string, by models.CancelActor) {
	d.publish(events.ReservationCancelledEvent, ReservationCancelledPayload{
		ReservationID: reservationID,
		CancelledBy:   by,
	})
}

func (d *Dispatcher) publish(subject string, payload interface{}) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(subject, payload); err != nil {
		d.logger.Error("Failed to publish lifecycle event", "subject", subject, "error", err)
	}
}
