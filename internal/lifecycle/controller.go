// Package lifecycle owns the reservation state machine: approval, token
// confirmation, cancellation with slot release, completion, and the
// expiry sweeper. Every transition runs in its own transaction under a
// reservation row lock and appends a StatusHistory entry; event dispatch
// happens only after commit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/dispatch"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/internal/token"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"gorm.io/gorm"
)

// Config carries the confirmation-token TTLs.
type Config struct {
	ConfirmationTTLEmail time.Duration
	ConfirmationTTLChat  time.Duration
	Location             *time.Location
}

// Controller drives reservation status transitions.
type Controller struct {
	db         *gorm.DB
	resRepo    *repository.ReservationRepository
	slotRepo   *repository.SlotRepository
	generator  *availability.Generator
	dispatcher *dispatch.Dispatcher
	logger     *logger.Logger
	cfg        Config
}

// NewController creates a lifecycle controller.
func NewController(
	db *gorm.DB,
	resRepo *repository.ReservationRepository,
	slotRepo *repository.SlotRepository,
	generator *availability.Generator,
	dispatcher *dispatch.Dispatcher,
	logger *logger.Logger,
	cfg Config,
) *Controller {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Controller{
		db:         db,
		resRepo:    resRepo,
		slotRepo:   slotRepo,
		generator:  generator,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RequestClientConfirmation issues a fresh confirmation token for a newly
// created PENDING reservation and moves it to WAITING_CLIENT. The email
// TTL applies. Called by the booking flow right after its transaction
// commits, replacing the implicit on-save hook of older revisions.
func (c *Controller) RequestClientConfirmation(ctx context.Context, reservationID string) error {
	tok, expires, err := c.issueToken(ctx, reservationID, c.cfg.ConfirmationTTLEmail)
	if err != nil {
		return err
	}
	c.dispatcher.ClientConfirmationRequested(reservationID, tok, expires)
	return nil
}

// Approve is the admin path: it issues a short-lived token for a PENDING
// reservation, moves it to WAITING_CLIENT, and has the link delivered
// over chat.
func (c *Controller) Approve(ctx context.Context, reservationID string) error {
	tok, expires, err := c.issueToken(ctx, reservationID, c.cfg.ConfirmationTTLChat)
	if err != nil {
		return err
	}
	c.dispatcher.ConfirmationLinkIssued(reservationID, tok, expires)
	return nil
}

func (c *Controller) issueToken(ctx context.Context, reservationID string, ttl time.Duration) (string, time.Time, error) {
	var tok string
	var expires time.Time
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resRepo := c.resRepo.WithTx(tx)
		res, err := resRepo.LockByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.New(apperror.NotFound, apperror.CodeNotFound, "reservation not found")
			}
			return err
		}
		if res.Status != models.ReservationPending {
			return apperror.Newf(apperror.StateInvalid, apperror.CodeInvalidTransition,
				"cannot issue confirmation link from status %s", res.Status)
		}

		tok, err = token.New()
		if err != nil {
			return err
		}
		expires = time.Now().Add(ttl)
		res.ConfirmationToken = &tok
		res.TokenExpiresAt = &expires
		res.Status = models.ReservationWaitingClient
		if err := resRepo.Save(ctx, res); err != nil {
			return err
		}
		return resRepo.AppendHistory(ctx, res.ID, models.ReservationWaitingClient, "confirmation link issued")
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, expires, nil
}

// ConfirmByToken validates a client's confirmation token and moves the
// reservation to CONFIRMED. The reason string is one of "invalid",
// "expired", "cancelled", "already_confirmed" or "confirmed"; only the
// last two come with ok=true. Re-posting a consumed token is idempotent
// and emits no second notification.
func (c *Controller) ConfirmByToken(ctx context.Context, tok string) (bool, string, *string, error) {
	var (
		ok         bool
		reason     string
		resID      *string
		notifyProf bool
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resRepo := c.resRepo.WithTx(tx)
		res, err := resRepo.LockByToken(ctx, tok)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				ok, reason = false, "invalid"
				return nil
			}
			return err
		}
		if res.TokenExpiresAt != nil && res.TokenExpiresAt.Before(time.Now()) {
			ok, reason = false, "expired"
			return nil
		}
		switch res.Status {
		case models.ReservationConfirmed, models.ReservationReconfirmed:
			ok, reason, resID = true, "already_confirmed", &res.ID
			return nil
		case models.ReservationCancelled:
			ok, reason = false, "cancelled"
			return nil
		}

		previous := res.Status
		res.Status = models.ReservationConfirmed
		if err := resRepo.Save(ctx, res); err != nil {
			return err
		}
		if err := resRepo.AppendHistory(ctx, res.ID, models.ReservationReconfirmed,
			fmt.Sprintf("confirmed by client via link (previous status: %s)", previous)); err != nil {
			return err
		}
		ok, reason, resID = true, "confirmed", &res.ID
		notifyProf = previous == models.ReservationWaitingClient
		return nil
	})
	if err != nil {
		return false, "", nil, err
	}
	if notifyProf && resID != nil {
		c.dispatcher.ClientConfirmed(*resID)
	}
	return ok, reason, resID, nil
}

// Cancel moves a reservation to CANCELLED, releases its slots back to
// AVAILABLE, and regenerates the affected days after commit so released
// slots are reconciled against any schedule change that happened while
// they were reserved.
func (c *Controller) Cancel(ctx context.Context, reservationID string, by models.CancelActor) error {
	type profDate struct {
		professionalID string
		date           string
	}
	var affected []profDate

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resRepo := c.resRepo.WithTx(tx)
		slotRepo := c.slotRepo.WithTx(tx)

		res, err := resRepo.LockByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.New(apperror.NotFound, apperror.CodeNotFound, "reservation not found")
			}
			return err
		}
		if res.Status.IsTerminal() {
			return apperror.Newf(apperror.StateInvalid, apperror.CodeInvalidTransition,
				"cannot cancel a reservation in status %s", res.Status)
		}

		res.Status = models.ReservationCancelled
		res.CancelledBy = &by
		if err := resRepo.Save(ctx, res); err != nil {
			return err
		}

		links, err := resRepo.SlotLinksFor(ctx, reservationID)
		if err != nil {
			return err
		}
		slotIDs := make([]string, 0, len(links))
		seen := make(map[profDate]bool)
		for _, link := range links {
			slotIDs = append(slotIDs, link.SlotID)
			if link.Slot != nil {
				pd := profDate{professionalID: link.ProfessionalID, date: link.Slot.Date}
				if !seen[pd] {
					seen[pd] = true
					affected = append(affected, pd)
				}
			}
		}
		if err := slotRepo.Release(ctx, slotIDs); err != nil {
			return err
		}
		return resRepo.AppendHistory(ctx, reservationID, models.ReservationCancelled,
			fmt.Sprintf("cancelled by %s", by))
	})
	if err != nil {
		return err
	}

	for _, pd := range affected {
		date, err := time.ParseInLocation("2006-01-02", pd.date, c.cfg.Location)
		if err != nil {
			c.logger.Error("Skipping regeneration for unparseable slot date", "date", pd.date, "error", err)
			continue
		}
		if _, err := c.generator.Regenerate(ctx, pd.professionalID, date); err != nil {
			c.logger.Error("Post-cancellation slot regeneration failed",
				"professionalId", pd.professionalID, "date", pd.date, "error", err)
		}
	}

	c.dispatcher.ReservationCancelled(reservationID, by)
	return nil
}

// Start moves a confirmed reservation to IN_PROGRESS.
func (c *Controller) Start(ctx context.Context, reservationID string) error {
	return c.transition(ctx, reservationID, models.ReservationInProgress, "work started",
		models.ReservationConfirmed, models.ReservationReconfirmed)
}

// Reconfirm records an optional second confirmation of an already
// confirmed reservation (a day-before reminder reply, typically).
func (c *Controller) Reconfirm(ctx context.Context, reservationID string) error {
	return c.transition(ctx, reservationID, models.ReservationReconfirmed, "reconfirmed",
		models.ReservationConfirmed)
}

// NoShow marks a confirmed reservation whose client never appeared.
func (c *Controller) NoShow(ctx context.Context, reservationID string) error {
	return c.transition(ctx, reservationID, models.ReservationNoShow, "client did not show",
		models.ReservationConfirmed, models.ReservationReconfirmed, models.ReservationInProgress)
}

// Complete closes out a reservation. Only allowed once its first slot has
// started; completing ahead of time is rejected.
func (c *Controller) Complete(ctx context.Context, reservationID string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resRepo := c.resRepo.WithTx(tx)
		res, err := resRepo.LockByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.New(apperror.NotFound, apperror.CodeNotFound, "reservation not found")
			}
			return err
		}
		switch res.Status {
		case models.ReservationConfirmed, models.ReservationReconfirmed,
			models.ReservationWaitingClient, models.ReservationInProgress:
		default:
			return apperror.Newf(apperror.StateInvalid, apperror.CodeInvalidTransition,
				"cannot complete a reservation in status %s", res.Status)
		}

		links, err := resRepo.SlotLinksFor(ctx, reservationID)
		if err != nil {
			return err
		}
		if len(links) > 0 && links[0].Slot != nil && links[0].Slot.StartDatetime.After(time.Now()) {
			return apperror.New(apperror.DomainConflict, apperror.CodePrematureCompletion,
				"reservation has not started yet")
		}

		res.Status = models.ReservationCompleted
		if err := resRepo.Save(ctx, res); err != nil {
			return err
		}
		return resRepo.AppendHistory(ctx, reservationID, models.ReservationCompleted, "completed")
	})
}

func (c *Controller) transition(ctx context.Context, reservationID string, to models.ReservationStatus, note string, from ...models.ReservationStatus) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resRepo := c.resRepo.WithTx(tx)
		res, err := resRepo.LockByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.New(apperror.NotFound, apperror.CodeNotFound, "reservation not found")
			}
			return err
		}
		allowed := false
		for _, f := range from {
			if res.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperror.Newf(apperror.StateInvalid, apperror.CodeInvalidTransition,
				"cannot move from %s to %s", res.Status, to)
		}
		res.Status = to
		if err := resRepo.Save(ctx, res); err != nil {
			return err
		}
		return resRepo.AppendHistory(ctx, reservationID, to, note)
	})
}

// SweepExpired cancels every WAITING_CLIENT reservation whose token
// expired. Each reservation is handled in its own transaction under a row
// lock, so the sweeper is idempotent and safe to run concurrently;
// failures are logged and skipped. Returns the number swept.
func (c *Controller) SweepExpired(ctx context.Context) int {
	ids, err := c.resRepo.ExpiredWaitingIDs(ctx, time.Now())
	if err != nil {
		c.logger.Error("Expiry sweep: listing expired reservations failed", "error", err)
		return 0
	}

	swept := 0
	for _, id := range ids {
		if err := c.cancelExpired(ctx, id); err != nil {
			if apperror.KindOf(err) == apperror.StateInvalid {
				// Another worker got here first.
				continue
			}
			c.logger.Error("Expiry sweep: cancelling reservation failed", "reservationId", id, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		c.logger.Info("Expiry sweep complete", "swept", swept)
	}
	return swept
}

func (c *Controller) cancelExpired(ctx context.Context, reservationID string) error {
	// Re-check status and expiry under lock; the listing read was stale.
	var stillExpired bool
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := c.resRepo.WithTx(tx).LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		stillExpired = res.Status == models.ReservationWaitingClient &&
			res.TokenExpiresAt != nil && res.TokenExpiresAt.Before(time.Now())
		return nil
	})
	if err != nil {
		return err
	}
	if !stillExpired {
		return nil
	}
	return c.Cancel(ctx, reservationID, models.CancelledBySystem)
}
