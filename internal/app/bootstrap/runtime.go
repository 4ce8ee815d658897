package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/nailspa-booking/internal/booking"
	"github.com/wolfman30/nailspa-booking/internal/business"
	"github.com/wolfman30/nailspa-booking/internal/channels/whenparse"
	"github.com/wolfman30/nailspa-booking/internal/clock"
	appconfig "github.com/wolfman30/nailspa-booking/internal/config"
	"github.com/wolfman30/nailspa-booking/internal/events"
	"github.com/wolfman30/nailspa-booking/internal/storage/postgres"
	"github.com/wolfman30/nailspa-booking/internal/storage/sqlite"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ProcessedTracker de-duplicates provider webhook deliveries.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Runtime holds the storage-backed engine shared by the API, the worker and
// bookctl.
type Runtime struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Redis     *redis.Client
	Catalog   business.Store
	Bookings  booking.Store
	Outbox    events.Source
	Processed ProcessedTracker
	Service   *booking.Service

	pool    *pgxpool.Pool
	sqlDB   *sql.DB
	closers []func()
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// New opens the configured store driver and builds the booking engine.
func New(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	rt := &Runtime{Config: cfg, Logger: logger}
	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if rt.Redis != nil {
		rt.closers = append(rt.closers, func() { _ = rt.Redis.Close() })
	}

	var catalog business.Store
	switch cfg.StoreDriver {
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL required for postgres store")
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rt.pool = pool
		rt.closers = append(rt.closers, pool.Close)
		catalog = postgres.NewBusinessStore(pool)
		rt.Bookings = postgres.NewBookingStore(pool)
		rt.Outbox = events.NewOutboxStore(pool)
		rt.Processed = events.NewProcessedStore(pool)
	case DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rt.sqlDB = db
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		catalog = sqlite.NewBusinessStore(db)
		rt.Bookings = sqlite.NewBookingStore(db)
		rt.Outbox = sqlite.NewOutboxSource(db)
	case DriverMemory, "":
		outbox := events.NewMemoryOutbox()
		catalog = business.NewMemoryStore()
		rt.Bookings = booking.NewMemoryStore(outbox)
		rt.Outbox = outbox
	default:
		rt.Close()
		return nil, fmt.Errorf("bootstrap: unknown store driver %q", cfg.StoreDriver)
	}

	if rt.Processed == nil && rt.Redis != nil {
		rt.Processed = events.NewRedisProcessedStore(rt.Redis, 7*24*time.Hour)
	}

	rt.Catalog = business.NewCachedStore(catalog, rt.Redis, cfg.HoursCacheTTL, logger)
	rt.Service = booking.NewService(rt.Bookings, rt.Catalog, booking.Options{
		StepMinutes:            cfg.SlotStepMinutes,
		DefaultDurationMinutes: cfg.DefaultServiceMinutes,
		LastSlot:               booking.ParseLastSlotPolicy(cfg.LastSlotPolicy),
		StoreTimeout:           cfg.StoreTimeout,
		PhoneRegion:            cfg.DefaultPhoneRegion,
	}, logger)

	logger.Info("booking runtime ready",
		"store", storeName(cfg.StoreDriver),
		"redis", rt.Redis != nil,
		"last_slot", string(booking.ParseLastSlotPolicy(cfg.LastSlotPolicy)),
	)
	return rt, nil
}

// Close releases every connection the runtime opened, newest first.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// Ping reports store reachability for health checks.
func (rt *Runtime) Ping(ctx context.Context) error {
	switch {
	case rt.pool != nil:
		return rt.pool.Ping(ctx)
	case rt.sqlDB != nil:
		return rt.sqlDB.PingContext(ctx)
	default:
		return nil
	}
}

// PingRedis reports cache reachability; a runtime without Redis is healthy.
func (rt *Runtime) PingRedis(ctx context.Context) error {
	if rt.Redis == nil {
		return nil
	}
	return rt.Redis.Ping(ctx).Err()
}

// BuildParser returns the natural-language date/time parser configured with
// the fallback day offset and time. A bad FALLBACK_TIME keeps 14:00.
func BuildParser(cfg *appconfig.Config, logger *logging.Logger) *whenparse.Parser {
	fallback, err := clock.ParseHHMM(cfg.FallbackTime)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid FALLBACK_TIME; using 14:00", "value", cfg.FallbackTime, "error", err)
		}
		return whenparse.New(cfg.FallbackDayOffset, civil.Time{Hour: 14})
	}
	return whenparse.New(cfg.FallbackDayOffset, fallback)
}

// ParseNumberMap decodes TWILIO_NUMBER_MAP_JSON ({"+15550001111":"biz-1"})
// and normalizes the phone keys to E.164.
func ParseNumberMap(raw, region string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("bootstrap: parse number map: %w", err)
	}
	out := make(map[string]string, len(decoded))
	for number, businessID := range decoded {
		normalized, err := booking.NormalizePhone(number, region)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: number map key %q: %w", number, err)
		}
		out[normalized] = strings.TrimSpace(businessID)
	}
	return out, nil
}

func storeName(driver string) string {
	if driver == "" {
		return DriverMemory
	}
	return driver
}
