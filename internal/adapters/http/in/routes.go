package in

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bodaboda-insure/core/internal/platform/httpserver"
	"github.com/bodaboda-insure/core/internal/platform/log"
)

// NewRouter builds the Fiber app and registers every route this
// service exposes: inbound provider webhooks and the
// rider-facing read/initiate-deposit/cancel-policy surface.
func NewRouter(logger log.Logger, h *Handler) *fiber.App {
	app := httpserver.New(logger)

	app.Post("/webhooks/mobilemoney/callback", h.MobileMoneyCallback)
	app.Post("/webhooks/notifications/delivery-report", h.NotificationDeliveryReport)

	app.Post("/v1/riders/:riderId/deposits", h.InitiateDeposit)
	app.Get("/v1/riders/:riderId/status", h.GetRiderStatus)

	app.Post("/v1/policies/:policyId/cancel", h.CancelPolicy)

	app.Get("/v1/payment-requests/:id", h.GetPaymentRequest)
	app.Post("/v1/riders/:riderId/payment-requests/:id/refresh", h.RefreshPaymentStatus)

	app.Get("/v1/ledger/trial-balance", h.GetTrialBalance)
	app.Post("/v1/ledger/partner-settlements", h.SettlePartner)

	app.Get("/v1/notifications/metrics", h.GetNotificationMetrics)

	return app
}
