package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultCurrency             = "usd"
	defaultTaxRate              = "0.21"
	defaultFreeShippingMinimum  = 50000
	defaultFlatShippingCost     = 1500
	defaultDeliveryLeadTime     = 7 * 24 * time.Hour
	defaultOrderNumberAttempts  = 3
	defaultPageSize             = 10
	defaultMaxPageSize          = 100
	defaultInvoiceTimeout       = 15 * time.Second
	defaultInvoiceLocale        = "es-AR"
	defaultInvoiceCompany       = "UriShop"
	defaultNotificationDrivers  = "log"
	defaultAMQPQueue            = "orders.notifications"
	defaultTrackingPerMinute    = 60
	defaultIdempotencyBackend   = "memory"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultCORSMaxAge           = 300
	defaultSecurityEnvironment  = "local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PSP           PSPConfig
	Pricing       PricingConfig
	Orders        OrdersConfig
	Invoices      InvoiceConfig
	Notifications NotificationConfig
	CORS          CORSConfig
	RateLimits    RateLimitConfig
	Redis         RedisConfig
	Idempotency   IdempotencyConfig
	Environment   string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the bucket that archives rendered invoices. Empty disables archiving.
type StorageConfig struct {
	InvoicesBucket string
}

// PSPConfig collects payment processor credentials.
type PSPConfig struct {
	StripeAPIKey         string
	StripePublishableKey string
	StripeWebhookSecret  string
	DefaultCurrency      string
}

// PricingConfig holds the business rules used to derive order totals.
type PricingConfig struct {
	TaxRate             decimal.Decimal
	FreeShippingMinimum int64
	FlatShippingCost    int64
}

// OrdersConfig tunes order lifecycle behaviour.
type OrdersConfig struct {
	DeliveryLeadTime    time.Duration
	OrderNumberAttempts int
	DefaultPageSize     int
	MaxPageSize         int
}

// InvoiceConfig configures PDF invoice rendering.
type InvoiceConfig struct {
	RendererURL   string
	RenderTimeout time.Duration
	Locale        string
	CompanyName   string
}

// NotificationConfig selects and configures notification drivers.
type NotificationConfig struct {
	Drivers         []string
	PubSubTopic     string
	EventsTopic     string
	AMQPURL         string
	AMQPQueue       string
	PubSubProjectID string
}

// CORSConfig lists the front-end origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig controls request throttling on public endpoints.
type RateLimitConfig struct {
	TrackingPerMinute int
}

// RedisConfig points at the shared Redis instance. Empty Addr disables Redis-backed components.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts...)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := options.lookup(dotEnvValues)

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			InvoicesBucket: stringWithDefault(lookup, "API_STORAGE_INVOICES_BUCKET", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:         stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripePublishableKey: stringWithDefault(lookup, "API_PSP_STRIPE_PUBLISHABLE_KEY", ""),
			StripeWebhookSecret:  stringWithDefault(lookup, "API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			DefaultCurrency:      strings.ToLower(stringWithDefault(lookup, "API_PSP_DEFAULT_CURRENCY", defaultCurrency)),
		},
		Pricing: PricingConfig{
			TaxRate:             decimalWithDefault(lookup, "API_PRICING_TAX_RATE", defaultTaxRate),
			FreeShippingMinimum: int64WithDefault(lookup, "API_PRICING_FREE_SHIPPING_MINIMUM", defaultFreeShippingMinimum),
			FlatShippingCost:    int64WithDefault(lookup, "API_PRICING_FLAT_SHIPPING_COST", defaultFlatShippingCost),
		},
		Orders: OrdersConfig{
			DeliveryLeadTime:    durationWithDefault(lookup, "API_ORDERS_DELIVERY_LEAD_TIME", defaultDeliveryLeadTime),
			OrderNumberAttempts: intWithDefault(lookup, "API_ORDERS_NUMBER_ATTEMPTS", defaultOrderNumberAttempts),
			DefaultPageSize:     intWithDefault(lookup, "API_ORDERS_DEFAULT_PAGE_SIZE", defaultPageSize),
			MaxPageSize:         intWithDefault(lookup, "API_ORDERS_MAX_PAGE_SIZE", defaultMaxPageSize),
		},
		Invoices: InvoiceConfig{
			RendererURL:   stringWithDefault(lookup, "API_INVOICE_RENDERER_URL", ""),
			RenderTimeout: durationWithDefault(lookup, "API_INVOICE_RENDER_TIMEOUT", defaultInvoiceTimeout),
			Locale:        stringWithDefault(lookup, "API_INVOICE_LOCALE", defaultInvoiceLocale),
			CompanyName:   stringWithDefault(lookup, "API_INVOICE_COMPANY_NAME", defaultInvoiceCompany),
		},
		Notifications: NotificationConfig{
			Drivers:         csvWithDefault(lookup, "API_NOTIFY_DRIVERS", defaultNotificationDrivers),
			PubSubTopic:     stringWithDefault(lookup, "API_NOTIFY_PUBSUB_TOPIC", ""),
			EventsTopic:     stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			AMQPURL:         stringWithDefault(lookup, "API_NOTIFY_AMQP_URL", ""),
			AMQPQueue:       stringWithDefault(lookup, "API_NOTIFY_AMQP_QUEUE", defaultAMQPQueue),
			PubSubProjectID: stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins:   csvWithDefault(lookup, "API_CORS_ALLOWED_ORIGINS", ""),
			AllowCredentials: boolWithDefault(lookup, "API_CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           intWithDefault(lookup, "API_CORS_MAX_AGE", defaultCORSMaxAge),
		},
		RateLimits: RateLimitConfig{
			TrackingPerMinute: intWithDefault(lookup, "API_RATELIMIT_TRACKING_PER_MIN", defaultTrackingPerMinute),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)),
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultSecurityEnvironment)),
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifications.PubSubProjectID == "" {
		cfg.Notifications.PubSubProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Redis.Password", &cfg.Redis.Password},
		{"Notifications.AMQPURL", &cfg.Notifications.AMQPURL},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

// HasDriver reports whether the notification driver is enabled.
func (c NotificationConfig) HasDriver(name string) bool {
	for _, driver := range c.Drivers {
		if strings.EqualFold(driver, name) {
			return true
		}
	}
	return false
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if cfg.Pricing.TaxRate.IsNegative() {
		invalid = append(invalid, "Pricing.TaxRate")
	}
	if cfg.Pricing.FreeShippingMinimum < 0 {
		invalid = append(invalid, "Pricing.FreeShippingMinimum")
	}
	if cfg.Pricing.FlatShippingCost < 0 {
		invalid = append(invalid, "Pricing.FlatShippingCost")
	}
	if cfg.Orders.OrderNumberAttempts <= 0 {
		invalid = append(invalid, "Orders.OrderNumberAttempts")
	}
	if cfg.Orders.MaxPageSize <= 0 || cfg.Orders.DefaultPageSize <= 0 || cfg.Orders.DefaultPageSize > cfg.Orders.MaxPageSize {
		invalid = append(invalid, "Orders.PageSize")
	}
	if cfg.Notifications.HasDriver("amqp") && cfg.Notifications.AMQPURL == "" {
		invalid = append(invalid, "Notifications.AMQPURL")
	}
	if cfg.Notifications.HasDriver("pubsub") && cfg.Notifications.PubSubTopic == "" {
		invalid = append(invalid, "Notifications.PubSubTopic")
	}
	switch cfg.Idempotency.Backend {
	case "memory", "firestore":
	case "redis":
		if cfg.Redis.Addr == "" {
			invalid = append(invalid, "Redis.Addr")
		}
	default:
		invalid = append(invalid, "Idempotency.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
