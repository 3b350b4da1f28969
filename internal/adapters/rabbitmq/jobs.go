// Package rabbitmq defines this service's queue topology and job
// payload shapes on top of internal/platform/rabbitmq's generic
// connection/producer/consumer: one exchange, a routing key per job
// kind, one durable queue per background worker — reconciliation
// polling, notification delivery attempts, and batch-submission
// retries.
package rabbitmq

const (
	// Exchange is the single topic exchange every job in this service
	// publishes to.
	Exchange = "bodaboda.jobs"

	RoutingKeyReconcilePayment  = "reconcile.payment"
	RoutingKeyNotificationSend  = "notification.send"
	RoutingKeyBatchRetry        = "batch.retry"

	QueueReconcilePayment = "bodaboda.reconcile_payment"
	QueueNotificationSend = "bodaboda.notification_send"
	QueueBatchRetry       = "bodaboda.batch_retry"
)

// ReconcilePaymentJob triggers a full stale-payment reconciler sweep;
// the consumer does not use PaymentRequestID to narrow it.
type ReconcilePaymentJob struct {
	PaymentRequestID string `json:"payment_request_id"`
}

// NotificationSendJob makes the orchestrator attempt delivery of one
// due notification; the consumer does not use NotificationID to pick
// which one.
type NotificationSendJob struct {
	NotificationID string `json:"notification_id"`
}

// BatchRetryJob triggers the batch scheduler's RetryFailed sweep over
// every retryable batch; the consumer does not use BatchID to narrow it.
type BatchRetryJob struct {
	BatchID string `json:"batch_id"`
}
