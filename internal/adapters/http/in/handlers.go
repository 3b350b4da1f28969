// Package in holds the inbound Fiber handlers for this service: the
// mobile-money and notification-provider webhook sinks, and the
// rider-status/trial-balance/deposit-initiation surface. One Handler
// struct, wired against the command/query UseCases rather than against
// Fiber or the database directly.
package in

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/httpserver"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/services/command"
	"github.com/bodaboda-insure/core/internal/services/query"
	"github.com/bodaboda-insure/core/pkg/money"
)

// Handler wires the HTTP surface to the command/query UseCases the
// bootstrap composition root builds.
type Handler struct {
	Commands *command.UseCase
	Queries  *query.UseCase
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.UUID{}, apperr.ValidationError{EntityType: "PathParameter", Message: "invalid " + name, Err: err}
	}

	return id, nil
}

// MobileMoneyCallback receives the provider's asynchronous settlement
// webhook and feeds it through the idempotent command.UseCase
// sink also used by the reconciler's poll path.
func (h *Handler) MobileMoneyCallback(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.mobilemoney_callback")
	defer span.End()

	payload, err := mobilemoney.ParseCallback(c.Body())
	if err != nil {
		return err
	}

	if err := h.Commands.HandleCallback(ctx, payload); err != nil {
		otel.HandleSpanError(&span, "failed to handle mobilemoney callback", err)
		return err
	}

	return c.SendStatus(http.StatusOK)
}

type deliveryReportBody struct {
	ProviderMessageID string `json:"provider_message_id" validate:"required"`
	Delivered         bool   `json:"delivered"`
	BounceKind        string `json:"bounce_kind"`
}

// NotificationDeliveryReport receives an SMS/WhatsApp/email vendor's
// delivery-status webhook and correlates it back to the Notification it
// belongs to.
func (h *Handler) NotificationDeliveryReport(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.notification_delivery_report")
	defer span.End()

	var body deliveryReportBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.ValidationError{EntityType: "DeliveryReport", Message: "malformed request body", Err: err}
	}

	if err := httpserver.Validate.Struct(body); err != nil {
		return apperr.ValidationError{EntityType: "DeliveryReport", Message: "missing provider_message_id", Err: err}
	}

	if err := h.Commands.HandleDeliveryReport(ctx, body.ProviderMessageID, body.Delivered, body.BounceKind); err != nil {
		otel.HandleSpanError(&span, "failed to handle delivery report", err)
		return err
	}

	return c.SendStatus(http.StatusOK)
}

type initiateDepositBody struct {
	WalletID       string `json:"wallet_id" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
}

// InitiateDeposit starts a rider's one-time deposit.
func (h *Handler) InitiateDeposit(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.initiate_deposit")
	defer span.End()

	riderID, err := parseUUIDParam(c, "riderId")
	if err != nil {
		return err
	}

	var body initiateDepositBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.ValidationError{EntityType: "InitiateDeposit", Message: "malformed request body", Err: err}
	}

	if err := httpserver.Validate.Struct(body); err != nil {
		return apperr.ValidationError{EntityType: "InitiateDeposit", Message: "missing required field", Err: err}
	}

	pr, err := h.Commands.InitiateDeposit(ctx, command.InitiateDepositInput{
		RiderID:        riderID.String(),
		WalletID:       body.WalletID,
		IdempotencyKey: body.IdempotencyKey,
		Phone:          body.Phone,
	})
	if err != nil {
		otel.HandleSpanError(&span, "failed to initiate deposit", err)
		return err
	}

	return c.Status(http.StatusAccepted).JSON(pr)
}

type cancelPolicyBody struct {
	Reason string `json:"reason"`
}

// CancelPolicy cancels an ACTIVE policy still within its free-look
// window.
func (h *Handler) CancelPolicy(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.cancel_policy")
	defer span.End()

	policyID, err := parseUUIDParam(c, "policyId")
	if err != nil {
		return err
	}

	var body cancelPolicyBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperr.ValidationError{EntityType: "CancelPolicy", Message: "malformed request body", Err: err}
		}
	}

	p, err := h.Commands.CancelPolicy(ctx, policyID, body.Reason)
	if err != nil {
		otel.HandleSpanError(&span, "failed to cancel policy", err)
		return err
	}

	return c.JSON(p)
}

// GetRiderStatus returns the rider-facing status summary.
func (h *Handler) GetRiderStatus(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.get_rider_status")
	defer span.End()

	riderID, err := parseUUIDParam(c, "riderId")
	if err != nil {
		return err
	}

	status, err := h.Queries.GetRiderStatus(ctx, riderID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get rider status", err)
		return err
	}

	return c.JSON(status)
}

// GetPaymentRequest returns a single payment request by id.
func (h *Handler) GetPaymentRequest(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.get_payment_request")
	defer span.End()

	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}

	pr, err := h.Queries.GetPaymentRequest(ctx, id)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get payment request", err)
		return err
	}

	return c.JSON(pr)
}

// RefreshPaymentStatus re-queries the provider for a rider's pending
// payment request, backing the "check status" action in the rider app.
func (h *Handler) RefreshPaymentStatus(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.refresh_payment_status")
	defer span.End()

	riderID, err := parseUUIDParam(c, "riderId")
	if err != nil {
		return err
	}

	requestID, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}

	pr, err := h.Commands.RefreshPaymentStatus(ctx, requestID, riderID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to refresh payment status", err)
		return err
	}

	return c.JSON(pr)
}

type settlePartnerBody struct {
	ReferenceID string `json:"reference_id" validate:"required"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
}

// SettlePartner posts a premium payout from escrow to the underwriter's
// operating account against the finance-side settlement reference.
func (h *Handler) SettlePartner(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.settle_partner")
	defer span.End()

	var body settlePartnerBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.ValidationError{EntityType: "PartnerSettlement", Message: "malformed request body", Err: err}
	}

	if err := httpserver.Validate.Struct(body); err != nil {
		return apperr.ValidationError{EntityType: "PartnerSettlement", Message: "missing or invalid field", Err: err}
	}

	referenceID, err := uuid.Parse(body.ReferenceID)
	if err != nil {
		return apperr.ValidationError{EntityType: "PartnerSettlement", Message: "invalid reference_id", Err: err}
	}

	entry, err := h.Commands.SettlePartner(ctx, referenceID, money.Minor(body.AmountMinor))
	if err != nil {
		otel.HandleSpanError(&span, "failed to post partner settlement", err)
		return err
	}

	return c.Status(http.StatusCreated).JSON(entry)
}

// GetNotificationMetrics returns the orchestrator's delivery counters
// (totals, retries, failovers, per-provider breakdown).
func (h *Handler) GetNotificationMetrics(c *fiber.Ctx) error {
	return c.JSON(h.Commands.Metrics.Snapshot())
}

// GetTrialBalance returns the ledger's per-account trial balance, optionally as of a past instant via ?as_of=RFC3339.
func (h *Handler) GetTrialBalance(c *fiber.Ctx) error {
	ctx, span := otel.FromContext(c.Context()).Start(c.Context(), "http.get_trial_balance")
	defer span.End()

	asOf := time.Now().UTC()

	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperr.ValidationError{EntityType: "TrialBalance", Message: "invalid as_of timestamp", Err: err}
		}

		asOf = parsed
	}

	tb, err := h.Queries.GetTrialBalance(ctx, asOf)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get trial balance", err)
		return err
	}

	return c.JSON(tb)
}
