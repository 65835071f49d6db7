package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/urishop/api/internal/handlers"
	"github.com/urishop/api/internal/invoices"
	"github.com/urishop/api/internal/notifications"
	"github.com/urishop/api/internal/payments"
	"github.com/urishop/api/internal/platform/auth"
	"github.com/urishop/api/internal/platform/config"
	pfirestore "github.com/urishop/api/internal/platform/firestore"
	"github.com/urishop/api/internal/platform/idempotency"
	"github.com/urishop/api/internal/platform/jobs"
	"github.com/urishop/api/internal/platform/observability"
	"github.com/urishop/api/internal/platform/secrets"
	platformstorage "github.com/urishop/api/internal/platform/storage"
	"github.com/urishop/api/internal/repositories"
	firestoreRepo "github.com/urishop/api/internal/repositories/firestore"
	"github.com/urishop/api/internal/services"
)

const (
	secretHealthReference = "secret://system/healthz?version=latest"
	closeTimeout          = 5 * time.Second
	notificationFanout    = 4
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders services.OrderService
	System services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Router       http.Handler

	logger  *zap.Logger
	closers []closer
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

type containerOptions struct {
	build   services.BuildInfo
	secrets *secrets.Fetcher
	clock   func() time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithBuildInfo sets the version metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) { o.build = build }
}

// WithSecretFetcher adds a Secret Manager readiness probe.
func WithSecretFetcher(fetcher *secrets.Fetcher) Option {
	return func(o *containerOptions) { o.secrets = fetcher }
}

// WithClock overrides the time source handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. On error every resource opened so far is released.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (c *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.build.StartedAt.IsZero() {
		options.build.StartedAt = options.clock().UTC()
	}

	c = &Container{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = c.Close(closeCtx)
			c = nil
		}
	}()

	var providerOpts []pfirestore.ProviderOption
	if creds := strings.TrimSpace(cfg.Firebase.CredentialsFile); creds != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	if _, err := provider.Client(ctx); err != nil {
		return nil, fmt.Errorf("initialise firestore client: %w", err)
	}
	c.addCloser("firestore", provider.Close)

	var redisClient redis.UniversalClient
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		redisClient = client
		c.addCloser("redis", func(context.Context) error { return client.Close() })
	}

	var pubsubClient *pubsub.Client
	if cfg.Notifications.HasDriver("pubsub") || strings.TrimSpace(cfg.Notifications.EventsTopic) != "" {
		client, err := pubsub.NewClient(ctx, cfg.Notifications.PubSubProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialise pubsub client: %w", err)
		}
		pubsubClient = client
		c.addCloser("pubsub", func(context.Context) error { return client.Close() })
	}

	var (
		notifyTopic *pubsub.Topic
		eventsTopic *pubsub.Topic
	)
	if pubsubClient != nil && cfg.Notifications.HasDriver("pubsub") {
		notifyTopic = pubsubClient.Topic(cfg.Notifications.PubSubTopic)
		c.addCloser("pubsub.notifications", stopTopic(notifyTopic))
	}
	if pubsubClient != nil && strings.TrimSpace(cfg.Notifications.EventsTopic) != "" {
		eventsTopic = pubsubClient.Topic(cfg.Notifications.EventsTopic)
		eventsTopic.EnableMessageOrdering = true
		c.addCloser("pubsub.events", stopTopic(eventsTopic))
	}

	checks := dependencyChecks(provider, redisClient, notifyTopic, options.secrets)
	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(options.clock))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	registry, err := firestoreRepo.NewRegistry(provider, health)
	if err != nil {
		return nil, fmt.Errorf("build repository registry: %w", err)
	}
	c.Repositories = registry

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: payments.StripeLogger(observability.NewEventLogger(logger.Named("payments"))),
	})
	if err != nil {
		return nil, fmt.Errorf("initialise stripe provider: %w", err)
	}

	renderer, err := newInvoiceRenderer(cfg.Invoices)
	if err != nil {
		return nil, err
	}

	var archive services.InvoiceArchive
	if bucket := strings.TrimSpace(cfg.Storage.InvoicesBucket); bucket != "" {
		storageClient, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialise storage client: %w", err)
		}
		c.addCloser("storage", func(context.Context) error { return storageClient.Close() })
		invoiceArchive, err := platformstorage.NewInvoiceArchive(storageClient, bucket)
		if err != nil {
			return nil, fmt.Errorf("initialise invoice archive: %w", err)
		}
		archive = invoiceArchive
	}

	notifier, err := c.buildNotifier(cfg.Notifications, notifyTopic)
	if err != nil {
		return nil, err
	}

	var events services.OrderEventPublisher
	if eventsTopic != nil {
		publisher, err := jobs.NewPubSubOrderEventPublisher(eventsTopic)
		if err != nil {
			return nil, fmt.Errorf("initialise order event publisher: %w", err)
		}
		events = publisher
	}

	pricing, err := services.NewPricingCalculator(services.PricingRules{
		TaxRate:               cfg.Pricing.TaxRate,
		FreeShippingThreshold: cfg.Pricing.FreeShippingMinimum,
		FlatShippingCost:      cfg.Pricing.FlatShippingCost,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing calculator: %w", err)
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       registry.Orders(),
		Payments:     stripeProvider,
		Pricing:      pricing,
		OrderNumbers: services.NewOrderNumberGenerator(options.clock, nil),
		Invoices:     renderer,
		InvoiceOptions: invoices.DocumentOptions{
			CompanyName: cfg.Invoices.CompanyName,
			Locale:      cfg.Invoices.Locale,
		},
		InvoiceArchive:      archive,
		Notifier:            notifier,
		Events:              events,
		UnitOfWork:          registry,
		Clock:               options.clock,
		Logger:              observability.NewEventLogger(logger.Named("orders")),
		Currency:            cfg.PSP.DefaultCurrency,
		DeliveryLeadTime:    cfg.Orders.DeliveryLeadTime,
		OrderNumberAttempts: cfg.Orders.OrderNumberAttempts,
		InvoiceTimeout:      cfg.Invoices.RenderTimeout,
		ListLimits: services.ListLimits{
			DefaultPageSize: cfg.Orders.DefaultPageSize,
			MaxPageSize:     cfg.Orders.MaxPageSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: registry.Health(),
		Clock:            options.clock,
		Build:            options.build,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	c.Services = Services{Orders: orderService, System: systemService}

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, 0, auth.WithAdminRevocationCheck())
	if err != nil {
		return nil, fmt.Errorf("initialise firebase verifier: %w", err)
	}
	authenticator := auth.NewAuthenticator(verifier)

	idemStore, err := newIdempotencyStore(cfg.Idempotency, provider, redisClient)
	if err != nil {
		return nil, err
	}
	idemLogger := logger.Named("idempotency")
	confirmGuard := idempotency.Middleware(idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idemLogger),
		idempotency.WithOptionalKey(),
	)
	workerCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		idempotency.RunCleanup(workerCtx, idemStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, idemLogger)
	}()

	tracking := newTrackingLimiter(cfg.RateLimits, redisClient, options.clock, observability.NewEventLogger(logger.Named("ratelimit")))

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, handlers.WithTrackingRateLimiter(tracking))
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, orderService,
		handlers.WithPublishableKey(cfg.PSP.StripePublishableKey),
		handlers.WithConfirmMiddleware(confirmGuard),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(systemService),
		handlers.WithHealthBuildInfo(options.build),
		handlers.WithHealthClock(options.clock),
	)

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")
	c.Router = handlers.NewRouter(
		handlers.WithCORS(cfg.CORS.AllowedOrigins, cfg.CORS.AllowCredentials, cfg.CORS.MaxAge),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.AccessLogMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
	)

	return c, nil
}

// Close stops background workers and releases clients in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.workers.Wait()

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].fn(ctx); err != nil {
			c.logger.Warn("close failed", zap.String("resource", c.closers[i].name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.closers[i].name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) addCloser(name string, fn func(ctx context.Context) error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func (c *Container) buildNotifier(cfg config.NotificationConfig, topic *pubsub.Topic) (notifications.Notifier, error) {
	fanout := notifications.NewFanout(notificationFanout)
	if cfg.HasDriver("log") {
		fanout.Add("log", notifications.NewLogNotifier(c.logger.Named("notifications")))
	}
	if topic != nil {
		pubsubNotifier, err := notifications.NewPubSubNotifier(topic)
		if err != nil {
			return nil, fmt.Errorf("initialise pubsub notifier: %w", err)
		}
		fanout.Add("pubsub", pubsubNotifier)
	}
	if cfg.HasDriver("amqp") {
		amqpNotifier, err := notifications.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("initialise amqp notifier: %w", err)
		}
		c.addCloser("amqp", func(context.Context) error { return amqpNotifier.Close() })
		fanout.Add("amqp", amqpNotifier)
	}
	if fanout.Len() == 0 {
		return nil, nil
	}
	return fanout, nil
}

func newInvoiceRenderer(cfg config.InvoiceConfig) (invoices.Renderer, error) {
	if url := strings.TrimSpace(cfg.RendererURL); url != "" {
		renderer, err := invoices.NewGotenbergRenderer(url, cfg.RenderTimeout, nil)
		if err != nil {
			return nil, fmt.Errorf("initialise gotenberg renderer: %w", err)
		}
		return renderer, nil
	}
	return invoices.NewFPDFRenderer(), nil
}

func newIdempotencyStore(cfg config.IdempotencyConfig, provider *pfirestore.Provider, client redis.UniversalClient) (idempotency.Store, error) {
	switch cfg.Backend {
	case "firestore":
		return idempotency.NewFirestoreStore(provider), nil
	case "redis":
		if client == nil {
			return nil, errors.New("idempotency: redis backend selected without a redis address")
		}
		return idempotency.NewRedisStore(client), nil
	case "", "memory":
		return idempotency.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("idempotency: unknown backend %q", cfg.Backend)
	}
}

func newTrackingLimiter(cfg config.RateLimitConfig, client redis.UniversalClient, clock func() time.Time, logger observability.EventLogger) handlers.RateLimiter {
	if client != nil {
		return handlers.NewRedisRateLimiter(client, cfg.TrackingPerMinute, time.Minute, clock, logger)
	}
	return handlers.NewMemoryRateLimiter(cfg.TrackingPerMinute, time.Minute, clock)
}

func dependencyChecks(provider *pfirestore.Provider, client redis.UniversalClient, topic *pubsub.Topic, fetcher *secrets.Fetcher) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	if client != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: 500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

func stopTopic(topic *pubsub.Topic) func(context.Context) error {
	return func(context.Context) error {
		topic.Stop()
		return nil
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
