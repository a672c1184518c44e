// Package subscribers hosts the background consumers of lifecycle events:
// the notification worker that turns published reservation transitions
// into email and chat deliveries through the outbound ports. Delivery is
// best-effort: the bus does not redeliver, failed sends are logged and not
// retried, and failures never reach the request that caused the
// transition; handlers return errors only so the bus layer can log them.
package subscribers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revitek/scheduling-engine/internal/dispatch"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// Mail template names understood by the notification service.
const (
	mailTemplateConfirmationRequest  = "reservation_confirmation_request"
	mailTemplateProfessionalNotice   = "reservation_confirmed_professional"
	mailTemplateReservationCancelled = "reservation_cancelled"
)

// Chat template names pre-approved with the provider.
const (
	chatTemplateConfirmationLink = "confirmacion_reserva"
)

// NotificationHandlers delivers lifecycle notifications.
type NotificationHandlers struct {
	resRepo  *repository.ReservationRepository
	profRepo *repository.ProfessionalRepository
	mailer   dispatch.Mailer
	chat     dispatch.Chat
	logger   *logger.Logger

	// confirmBaseURL prefixes tokens into client-facing links.
	confirmBaseURL string
}

// NewNotificationHandlers creates the notification worker.
func NewNotificationHandlers(
	resRepo *repository.ReservationRepository,
	profRepo *repository.ProfessionalRepository,
	mailer dispatch.Mailer,
	chat dispatch.Chat,
	logger *logger.Logger,
	confirmBaseURL string,
) *NotificationHandlers {
	return &NotificationHandlers{
		resRepo:        resRepo,
		profRepo:       profRepo,
		mailer:         mailer,
		chat:           chat,
		logger:         logger,
		confirmBaseURL: confirmBaseURL,
	}
}

// Subscribe registers every handler on the bus.
func (h *NotificationHandlers) Subscribe(subscriber *events.Subscriber) error {
	subscriptions := map[string]func([]byte) error{
		events.ReservationRequestedEvent:   h.HandleReservationRequested,
		events.ConfirmationLinkIssuedEvent: h.HandleConfirmationLinkIssued,
		events.ReservationConfirmedEvent:   h.HandleReservationConfirmed,
		events.ReservationCancelledEvent:   h.HandleReservationCancelled,
	}
	for subject, handler := range subscriptions {
		if err := subscriber.Subscribe(subject, handler); err != nil {
			return fmt.Errorf("subscribing notification handler to %s: %w", subject, err)
		}
	}
	return nil
}

func (h *NotificationHandlers) confirmLink(token string) string {
	return fmt.Sprintf("%s/confirm/%s", h.confirmBaseURL, token)
}

// idempotencyKey derives the per-delivery key the chat provider uses to
// drop duplicate sends of the same logical notification.
func idempotencyKey(reservationID, kind string) string {
	return reservationID + ":" + kind
}

// HandleReservationRequested asks the client to confirm a new reservation
// by email and, when a phone is on file, by chat.
func (h *NotificationHandlers) HandleReservationRequested(data []byte) error {
	var payload dispatch.ClientConfirmationRequestedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshaling confirmation request payload: %w", err)
	}

	ctx := context.Background()
	res, err := h.resRepo.GetByID(ctx, payload.ReservationID)
	if err != nil {
		h.logger.Error("Notification: reservation lookup failed", "reservationId", payload.ReservationID, "error", err)
		return err
	}
	if res.Client == nil {
		h.logger.Warn("Notification: reservation has no client, skipping", "reservationId", res.ID)
		return nil
	}

	mailData := map[string]interface{}{
		"reservationId": res.ID,
		"confirmLink":   h.confirmLink(payload.Token),
		"expiresAt":     payload.ExpiresAt,
		"totalMinutes":  res.TotalMinutes,
	}
	if err := h.mailer.Send(ctx, mailTemplateConfirmationRequest, []string{res.Client.Email}, mailData); err != nil {
		h.logger.Error("Notification: confirmation request email failed", "reservationId", res.ID, "error", err)
	}

	if res.Client.Phone != "" {
		params := map[string]string{"1": h.confirmLink(payload.Token)}
		key := idempotencyKey(res.ID, "confirmation_requested")
		if err := h.chat.SendTemplate(ctx, res.Client.Phone, chatTemplateConfirmationLink, params, key); err != nil {
			h.logger.Error("Notification: confirmation request chat failed", "reservationId", res.ID, "error", err)
		}
	}
	return nil
}

// HandleConfirmationLinkIssued delivers an admin-issued link over chat.
func (h *NotificationHandlers) HandleConfirmationLinkIssued(data []byte) error {
	var payload dispatch.ConfirmationLinkIssuedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshaling confirmation link payload: %w", err)
	}

	ctx := context.Background()
	res, err := h.resRepo.GetByID(ctx, payload.ReservationID)
	if err != nil {
		h.logger.Error("Notification: reservation lookup failed", "reservationId", payload.ReservationID, "error", err)
		return err
	}
	if res.Client == nil || res.Client.Phone == "" {
		h.logger.Warn("Notification: no client phone for chat link", "reservationId", payload.ReservationID)
		return nil
	}

	params := map[string]string{"1": h.confirmLink(payload.Token)}
	key := idempotencyKey(res.ID, "link_issued")
	if err := h.chat.SendTemplate(ctx, res.Client.Phone, chatTemplateConfirmationLink, params, key); err != nil {
		h.logger.Error("Notification: chat link delivery failed", "reservationId", res.ID, "error", err)
	}
	return nil
}

// HandleReservationConfirmed notifies the assigned professional.
func (h *NotificationHandlers) HandleReservationConfirmed(data []byte) error {
	var payload dispatch.ProfessionalNotificationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshaling professional notification payload: %w", err)
	}

	ctx := context.Background()
	res, err := h.resRepo.GetByID(ctx, payload.ReservationID)
	if err != nil {
		h.logger.Error("Notification: reservation lookup failed", "reservationId", payload.ReservationID, "error", err)
		return err
	}
	if len(res.Slots) == 0 {
		h.logger.Warn("Notification: reservation has no slots, skipping professional notice", "reservationId", res.ID)
		return nil
	}

	prof, err := h.profRepo.GetByID(ctx, res.Slots[0].ProfessionalID)
	if err != nil {
		h.logger.Error("Notification: professional lookup failed", "reservationId", res.ID, "error", err)
		return err
	}
	if prof.Email == "" {
		h.logger.Warn("Notification: professional has no email", "professionalId", prof.ID)
		return nil
	}

	mailData := map[string]interface{}{
		"reservationId": res.ID,
		"totalMinutes":  res.TotalMinutes,
	}
	if res.Slots[0].Slot != nil {
		mailData["start"] = res.Slots[0].Slot.StartDatetime
	}
	if err := h.mailer.Send(ctx, mailTemplateProfessionalNotice, []string{prof.Email}, mailData); err != nil {
		h.logger.Error("Notification: professional email failed", "reservationId", res.ID, "error", err)
	}
	return nil
}

// HandleReservationCancelled tells the client their reservation is gone.
// System-expired cancellations go out too: the client let the token lapse
// and should know the slot was released.
func (h *NotificationHandlers) HandleReservationCancelled(data []byte) error {
	var payload dispatch.ReservationCancelledPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshaling cancellation payload: %w", err)
	}

	ctx := context.Background()
	res, err := h.resRepo.GetByID(ctx, payload.ReservationID)
	if err != nil {
		h.logger.Error("Notification: reservation lookup failed", "reservationId", payload.ReservationID, "error", err)
		return err
	}
	if res.Client == nil {
		return nil
	}

	mailData := map[string]interface{}{
		"reservationId": res.ID,
		"cancelledBy":   string(payload.CancelledBy),
	}
	if err := h.mailer.Send(ctx, mailTemplateReservationCancelled, []string{res.Client.Email}, mailData); err != nil {
		h.logger.Error("Notification: cancellation email failed", "reservationId", res.ID, "error", err)
	}

	if res.Client.Phone != "" && payload.CancelledBy != models.CancelledByClientChat {
		body := "Tu reserva fue cancelada. Escribe *menu* si quieres agendar una nueva hora."
		if err := h.chat.SendText(ctx, res.Client.Phone, body); err != nil {
			h.logger.Error("Notification: cancellation chat failed", "reservationId", res.ID, "error", err)
		}
	}
	return nil
}
