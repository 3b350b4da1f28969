package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	httpin "github.com/bodaboda-insure/core/internal/adapters/http/in"
	"github.com/bodaboda-insure/core/internal/adapters/mongo/callbackaudit"
	ledgerpg "github.com/bodaboda-insure/core/internal/adapters/postgres/ledger"
	notificationpg "github.com/bodaboda-insure/core/internal/adapters/postgres/notification"
	paymentpg "github.com/bodaboda-insure/core/internal/adapters/postgres/payment"
	policypg "github.com/bodaboda-insure/core/internal/adapters/postgres/policy"
	refundpg "github.com/bodaboda-insure/core/internal/adapters/postgres/refund"
	riderpg "github.com/bodaboda-insure/core/internal/adapters/postgres/rider"
	walletpg "github.com/bodaboda-insure/core/internal/adapters/postgres/wallet"
	"github.com/bodaboda-insure/core/internal/adapters/providers/email"
	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/adapters/providers/sms"
	"github.com/bodaboda-insure/core/internal/adapters/providers/storage"
	"github.com/bodaboda-insure/core/internal/adapters/providers/underwriter"
	"github.com/bodaboda-insure/core/internal/adapters/providers/whatsapp"
	"github.com/bodaboda-insure/core/internal/adapters/rabbitmq"
	"github.com/bodaboda-insure/core/internal/adapters/redis/idempotency"
	"github.com/bodaboda-insure/core/internal/adapters/redis/providerhealth"
	"github.com/bodaboda-insure/core/internal/adapters/redis/suppression"
	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/mongo"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
	platformrabbitmq "github.com/bodaboda-insure/core/internal/platform/rabbitmq"
	"github.com/bodaboda-insure/core/internal/platform/redis"
	"github.com/bodaboda-insure/core/internal/services/command"
	"github.com/bodaboda-insure/core/internal/services/query"
)

// Service is the fully wired process: the HTTP server, the three
// RabbitMQ consumers and the background sweep tickers for the batch
// scheduler, notification orchestrator and reconciler.
type Service struct {
	cfg      *Config
	logger   log.Logger
	commands *command.UseCase
	queries  *query.UseCase
	router   httpRunner
	rabbitmq *platformrabbitmq.Connection
	consumers []*platformrabbitmq.Consumer
}

// httpRunner is the subset of *fiber.App bootstrap drives, kept as an
// interface so this file does not need to import fiber directly.
type httpRunner interface {
	Listen(addr string) error
	ShutdownWithContext(ctx context.Context) error
}

// Init builds the full dependency graph from environment
// configuration.
func Init(ctx context.Context) (*Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := log.New(cfg.EnvName, cfg.LogLevel)

	pgConn := &postgres.Connection{
		ConnectionString: postgres.DSN(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort),
		MaxOpenConns:      cfg.DBMaxOpenConns,
		MaxIdleConns:      cfg.DBMaxIdleConns,
		Logger:            logger,
	}
	if _, err := pgConn.GetDB(); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisConn := &redis.Connection{ConnectionString: cfg.RedisURL, Logger: logger}
	if _, err := redisConn.GetClient(ctx); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	mongoConn := &mongo.Connection{
		ConnectionString: cfg.MongoURI,
		Database:         cfg.MongoName,
		MaxPoolSize:      50,
		Logger:           logger,
	}
	if _, err := mongoConn.GetDB(ctx); err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	rmqConn := &platformrabbitmq.Connection{ConnectionString: cfg.RabbitMQURL, Logger: logger}
	if err := declareTopology(rmqConn); err != nil {
		return nil, fmt.Errorf("declare rabbitmq topology: %w", err)
	}

	producer := platformrabbitmq.NewProducer(rmqConn)

	riderRepo := riderpg.NewPostgreSQLRepository(pgConn)
	walletRepo := walletpg.NewPostgreSQLRepository(pgConn)
	paymentRepo := paymentpg.NewPostgreSQLRepository(pgConn)
	transactionRepo := paymentpg.NewTransactionPostgreSQLRepository(pgConn)
	policyRepo := policypg.NewPostgreSQLRepository(pgConn)
	batchRepo := policypg.NewBatchPostgreSQLRepository(pgConn)
	ledgerRepo := ledgerpg.NewPostgreSQLRepository(pgConn)
	accountRepo := ledgerpg.NewAccountPostgreSQLRepository(pgConn)
	notificationRepo := notificationpg.NewPostgreSQLRepository(pgConn)
	refundRepo := refundpg.NewPostgreSQLRepository(pgConn)

	auditRepo := callbackaudit.NewRepository(mongoConn)

	idempotencyCache := idempotency.NewCache(redisConn, 24*time.Hour)
	healthCache := providerhealth.NewCache(redisConn, time.Minute)
	suppressionCache := suppression.NewCache(redisConn)

	mmGateway := buildMobileMoneyGateway(cfg)
	underwriterGateway := buildUnderwriterGateway(cfg)
	notifier := buildNotifier(cfg)
	store := buildStorage(ctx, cfg, logger)

	loc, err := time.LoadLocation(cfg.QuietHoursZone)
	if err != nil {
		loc = time.UTC
	}

	constants := command.Constants{
		DepositAmountMinor:            int64(cfg.DepositAmountMinor),
		DailyAmountMinor:              int64(cfg.DailyAmountMinor),
		DaysRequired:                  cfg.DaysRequired,
		MaxBatchRetries:               cfg.MaxBatchRetries,
		MaxNotificationRetries:        cfg.MaxNotificationRetries,
		StalePendingAfterSeconds:      cfg.StalePendingAfterSeconds,
		QuietHoursStart:               cfg.QuietHoursStart,
		QuietHoursEnd:                 cfg.QuietHoursEnd,
		QuietHoursZone:                loc,
		CommissionPlatformNumerator:   int64(cfg.CommissionPlatformNumerator),
		CommissionPlatformDenominator: int64(cfg.CommissionPlatformDenominator),
	}

	commands := &command.UseCase{
		RiderRepo:        riderRepo,
		WalletRepo:       walletRepo,
		PaymentRepo:      paymentRepo,
		TransactionRepo:  transactionRepo,
		PolicyRepo:       policyRepo,
		BatchRepo:        batchRepo,
		LedgerRepo:       ledgerRepo,
		AccountRepo:      accountRepo,
		NotificationRepo: notificationRepo,
		RefundRepo:       refundRepo,
		CallbackAudit:    auditRepo,
		MobileMoney:      mmGateway,
		IdempotencyLocks: idempotencyCache,
		ProviderHealth:   healthCache,
		Suppression:      suppressionCache,
		Storage:          store,
		Notifier:         notifier,
		Metrics:          command.NewDeliveryMetrics(),
		Producer:         producer,
		Constants:        constants,
	}

	queries := &query.UseCase{
		RiderRepo:        riderRepo,
		WalletRepo:       walletRepo,
		PaymentRepo:      paymentRepo,
		PolicyRepo:       policyRepo,
		BatchRepo:        batchRepo,
		LedgerRepo:       ledgerRepo,
		AccountRepo:      accountRepo,
		NotificationRepo: notificationRepo,
	}

	handler := &httpin.Handler{Commands: commands, Queries: queries}
	router := httpin.NewRouter(logger, handler)

	svc := &Service{
		cfg:      cfg,
		logger:   logger,
		commands: commands,
		queries:  queries,
		router:   router,
		rabbitmq: rmqConn,
	}

	svc.consumers = svc.buildConsumers(underwriterGateway)

	return svc, nil
}

// declareTopology declares the single exchange and the three durable
// queues this service consumes from, bound with their routing keys.
// internal/platform/rabbitmq.Consumer only opens an existing queue, so
// bootstrap owns topology declaration.
func declareTopology(conn *platformrabbitmq.Connection) error {
	ch, err := conn.GetChannel()
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(rabbitmq.Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	bindings := []struct {
		queue      string
		routingKey string
	}{
		{rabbitmq.QueueReconcilePayment, rabbitmq.RoutingKeyReconcilePayment},
		{rabbitmq.QueueNotificationSend, rabbitmq.RoutingKeyNotificationSend},
		{rabbitmq.QueueBatchRetry, rabbitmq.RoutingKeyBatchRetry},
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return err
		}

		if err := ch.QueueBind(b.queue, b.routingKey, rabbitmq.Exchange, false, nil); err != nil {
			return err
		}
	}

	return nil
}

func buildMobileMoneyGateway(cfg *Config) mobilemoney.Gateway {
	if cfg.MobileMoneySandbox || cfg.MobileMoneyBaseURL == "" {
		return mobilemoney.NewSandboxGateway()
	}

	return mobilemoney.NewHTTPGateway(cfg.MobileMoneyBaseURL, cfg.MobileMoneyAPIKey)
}

func buildUnderwriterGateway(cfg *Config) command.Underwriter {
	if cfg.UnderwriterSandbox || cfg.UnderwriterBaseURL == "" {
		return underwriter.NewSandboxGateway()
	}

	return underwriter.NewHTTPGateway(cfg.UnderwriterBaseURL, cfg.UnderwriterAPIKey)
}

// buildNotifier wires the SMS primary/secondary failover pair:
// Africa's Talking as the regional primary,
// Twilio as the secondary vendor, plus WhatsApp and email legs when
// credentials are present.
func buildNotifier(cfg *Config) command.Notifier {
	n := command.Notifier{}

	if cfg.AfricasTalkingAPIKey != "" {
		n.SMSPrimary = sms.NewAfricasTalkingSender(cfg.AfricasTalkingUsername, cfg.AfricasTalkingAPIKey, cfg.AfricasTalkingFrom)
		n.SMSPrimaryName = "africastalking"
	}

	if cfg.TwilioAccountSID != "" {
		twilioSMS := sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioSMSFrom)
		n.SMSSecondaryName = "twilio"

		if n.SMSPrimary == nil {
			n.SMSPrimary = twilioSMS
			n.SMSPrimaryName = "twilio"
			n.SMSSecondary = nil
		} else {
			n.SMSSecondary = twilioSMS
		}

		n.WhatsAppPrimary = whatsapp.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
		n.WhatsAppPrimaryName = "twilio"
	}

	if cfg.SendGridAPIKey != "" {
		n.EmailPrimary = email.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
		n.EmailPrimaryName = "sendgrid"
	}

	return n
}

// buildStorage wires the S3 certificate store when credentials are
// configured; a nil Store leaves certificate generation a no-op, which
// command.generateCertificate already treats as best-effort.
func buildStorage(ctx context.Context, cfg *Config, logger log.Logger) storage.Store {
	if cfg.S3Bucket == "" {
		return nil
	}

	s3, err := storage.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)
	if err != nil {
		logger.Warnf("failed to init S3 certificate store, certificates disabled: %v", err)
		return nil
	}

	return s3
}

// buildConsumers wires the three queues of internal/adapters/rabbitmq
// to their handling UseCase methods, each handler unmarshalling its
// job payload and delegating to the command layer.
func (s *Service) buildConsumers(underwriterGateway command.Underwriter) []*platformrabbitmq.Consumer {
	reconcileHandler := func(ctx context.Context, body []byte) error {
		var job rabbitmq.ReconcilePaymentJob
		if err := json.Unmarshal(body, &job); err != nil {
			return err
		}

		if _, err := uuid.Parse(job.PaymentRequestID); err != nil {
			return err
		}

		_, err := s.commands.ReconcileStalePayments(ctx, time.Duration(s.cfg.StalePendingAfterSeconds)*time.Second)
		return err
	}

	notificationHandler := func(ctx context.Context, body []byte) error {
		var job rabbitmq.NotificationSendJob
		if err := json.Unmarshal(body, &job); err != nil {
			return err
		}

		_, err := s.commands.ProcessDueNotifications(ctx, 1, s.resolveContact)
		return err
	}

	batchRetryHandler := func(ctx context.Context, body []byte) error {
		var job rabbitmq.BatchRetryJob
		if err := json.Unmarshal(body, &job); err != nil {
			return err
		}

		_, err := s.commands.RetryFailed(ctx, underwriterGateway)
		return err
	}

	return []*platformrabbitmq.Consumer{
		platformrabbitmq.NewConsumer(s.rabbitmq, rabbitmq.QueueReconcilePayment, reconcileHandler, s.logger),
		platformrabbitmq.NewConsumer(s.rabbitmq, rabbitmq.QueueNotificationSend, notificationHandler, s.logger),
		platformrabbitmq.NewConsumer(s.rabbitmq, rabbitmq.QueueBatchRetry, batchRetryHandler, s.logger),
	}
}

// resolveContact looks up the phone number a queued notification
// should be delivered to, the callback ProcessDueNotifications needs
// since a Notification only stores a rider id.
func (s *Service) resolveContact(ctx context.Context, riderID uuid.UUID) (command.RiderContact, error) {
	r, err := s.commands.RiderRepo.Find(ctx, riderID)
	if err != nil {
		return command.RiderContact{}, err
	}

	return command.RiderContact{PhoneE164: r.Phone}, nil
}

// Run starts the HTTP server, the three RabbitMQ consumers and the
// batch/notification/reconciler sweep tickers, blocking until SIGINT or
// SIGTERM, then draining everything within a bounded grace period.
func (s *Service) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		s.logger.Infof("http server listening on %s", s.cfg.HTTPAddress)

		if err := s.router.Listen(s.cfg.HTTPAddress); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for _, c := range s.consumers {
		c := c

		go func() {
			if err := c.Run(ctx); err != nil {
				s.logger.Errorf("consumer stopped: %v", err)
			}
		}()
	}

	go s.runBatchScheduler(ctx)
	go s.runNotificationSweep(ctx)
	go s.runReconcilerSweep(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		s.logger.Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		s.logger.Errorf("shutting down after error: %v", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	return s.router.ShutdownWithContext(shutdownCtx)
}

// runBatchScheduler fires ProcessBatch for whichever of the three fixed
// daily schedules matches the current wall-clock minute, in
// cfg.QuietHoursZone's location (EAT in production).
func (s *Service) runBatchScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.BatchSweepInterval)
	defer ticker.Stop()

	underwriterGateway := buildUnderwriterGateway(s.cfg)

	loc, err := time.LoadLocation(s.cfg.QuietHoursZone)
	if err != nil {
		loc = time.UTC
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			local := now.In(loc)

			schedule, ok := batchScheduleAt(local)
			if !ok {
				continue
			}

			windowStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)

			if _, err := s.commands.ProcessBatch(ctx, underwriterGateway, string(schedule), windowStart); err != nil {
				s.logger.Errorf("batch scheduler run failed for schedule %s: %v", schedule, err)
			}
		}
	}
}

// batchScheduleAt reports which of constant.BatchWallClockTimes' fixed
// daily schedules, if any, the current local minute matches.
func batchScheduleAt(local time.Time) (constant.BatchSchedule, bool) {
	elapsed := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute

	for schedule, at := range constant.BatchWallClockTimes {
		if elapsed == at {
			return schedule, true
		}
	}

	return "", false
}

func (s *Service) runNotificationSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.NotificationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.commands.ProcessDueNotifications(ctx, 50, s.resolveContact); err != nil {
				s.logger.Errorf("notification sweep failed: %v", err)
			}
		}
	}
}

func (s *Service) runReconcilerSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReconcilerSweepInterval)
	defer ticker.Stop()

	staleAfter := time.Duration(s.cfg.StalePendingAfterSeconds) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.commands.ReconcileStalePayments(ctx, staleAfter); err != nil {
				s.logger.Errorf("reconciler sweep failed: %v", err)
			}
		}
	}
}
