package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/hushapp/anonid/pkg/admingate"
	gateapi "github.com/hushapp/anonid/pkg/admingate/api"
	"github.com/hushapp/anonid/pkg/audit"
	auditapi "github.com/hushapp/anonid/pkg/audit/api"
	"github.com/hushapp/anonid/pkg/config"
	"github.com/hushapp/anonid/pkg/device"
	deviceapi "github.com/hushapp/anonid/pkg/device/api"
	"github.com/hushapp/anonid/pkg/linkpin"
	linkapi "github.com/hushapp/anonid/pkg/linkpin/api"
	"github.com/hushapp/anonid/pkg/moderation"
	moderationapi "github.com/hushapp/anonid/pkg/moderation/api"
	"github.com/hushapp/anonid/pkg/notify"
	"github.com/hushapp/anonid/pkg/profile"
	"github.com/hushapp/anonid/pkg/ratelimit"
	"github.com/hushapp/anonid/pkg/suspicion"
)

// Online guessing budget assumed when validating the PIN policy, in
// attempts per second across all devices
const maxPinGuessRate = 10.0

type AnonidDbConfig struct {
	Host     string `env:"ANONID_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"ANONID_PG_PORT" env-default:"5432"`
	Database string `env:"ANONID_PG_DATABASE" env-default:"anonid_db"`
	User     string `env:"ANONID_PG_USER" env-default:"anonid"`
	Password string `env:"ANONID_PG_PASSWORD" env-default:"pwd"`
}

func (d AnonidDbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type SMTPEnvConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	TLS      bool   `env:"SMTP_TLS" env-default:"true"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
	To       string `env:"ALERT_EMAIL_TO"`
}

type BootstrapConfig struct {
	// AdminProfileID promotes the named profile on startup while the grant
	// table is still empty. Leave unset after the first operator exists.
	AdminProfileID string `env:"ADMIN_BOOTSTRAP_PROFILE_ID"`
}

type Config struct {
	AnonidDbConfig  AnonidDbConfig
	AppConfig       app.AppConfig
	SMTPConfig      SMTPEnvConfig
	BootstrapConfig BootstrapConfig
}

func main() {
	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	securityConfig := config.NewSecurityConfigFromEnv()
	if err := securityConfig.Validate(maxPinGuessRate); err != nil {
		slog.Error("Refusing to start with unsafe security config", "err", err)
		os.Exit(-1)
	}
	if securityConfig.LinkSecret == "" {
		slog.Error("SECURITY_LINK_SECRET is required")
		os.Exit(-1)
	}
	rateLimitConfig := config.NewRateLimitConfigFromEnv()

	server := app.DefaultApp()
	app.RegisterHealthzRoutes(server.R)

	dbConfig := cfg.AnonidDbConfig.toDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}

	// Operator alerts go to email when SMTP is configured, otherwise to the log
	var notifier notify.Notifier
	if cfg.SMTPConfig.Host != "" {
		notifier, err = notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPConfig.Host,
			Port:     cfg.SMTPConfig.Port,
			TLS:      cfg.SMTPConfig.TLS,
			Username: cfg.SMTPConfig.Username,
			Password: cfg.SMTPConfig.Password,
			From:     cfg.SMTPConfig.From,
			To:       cfg.SMTPConfig.To,
		})
		if err != nil {
			slog.Error("Failed creating email notifier", "err", err)
			os.Exit(-1)
		}
	} else {
		notifier = notify.NewSlogNotifier()
	}

	auditRepo := audit.NewPostgresEventRepository(pool)
	auditService := audit.NewService(auditRepo, notifier)

	deviceRepo, err := device.NewDeviceRepository("postgres", device.RepositoryConfig{DB: pool})
	if err != nil {
		slog.Error("Failed creating device repository", "err", err)
		os.Exit(-1)
	}
	deviceService := device.NewDeviceService(deviceRepo)

	profileRepo := profile.NewPostgresProfileRepository(pool)
	binderService := profile.NewBinderService(profileRepo, deviceService)

	grantRepo := admingate.NewPostgresAdminGrantRepository(pool)
	gateService := admingate.NewGateService(grantRepo, auditService, securityConfig.AdminCapacity)

	hasher, err := linkpin.NewHasher(securityConfig.LinkSecret)
	if err != nil {
		slog.Error("Failed creating pin hasher", "err", err)
		os.Exit(-1)
	}
	pinRepo := linkpin.NewPostgresLinkPinRepository(pool)
	linkService := linkpin.NewLinkService(pinRepo, binderService, auditService, hasher,
		linkpin.WithPinLength(securityConfig.PinLength),
		linkpin.WithPinTTL(securityConfig.PinTTL),
	)

	scorer := suspicion.NewScorer(deviceRepo, auditService,
		suspicion.WithThreshold(securityConfig.SuspicionThreshold),
		suspicion.WithWindow(securityConfig.SuspicionWindow),
	)

	rl := ratelimit.NewMiddleware(rateLimitConfig)
	moderationService := moderation.NewModerationService(deviceRepo, gateService, scorer, auditService, notifier,
		moderation.WithLimitResetter(rl))

	bootstrapAdmin(cfg.BootstrapConfig, gateService)

	server.R.Use(device.Middleware(deviceService))
	server.R.Use(rl.Handler)

	deviceHandler := deviceapi.NewDeviceHandler(deviceService, binderService, gateService)
	linkHandler := linkapi.NewLinkHandler(linkService, scorer)
	gateHandler := gateapi.NewGateHandler(gateService)
	auditHandler := auditapi.NewAuditHandler(auditService, gateService)
	moderationHandler := moderationapi.NewModerationHandler(moderationService)

	server.R.Mount("/api/devices", deviceapi.Handler(deviceHandler))
	server.R.Mount("/api/link", linkapi.Handler(linkHandler, rl.RedeemHandler))
	server.R.Mount("/api/admin", gateapi.Handler(gateHandler))
	server.R.Mount("/api/audit", auditapi.Handler(auditHandler))
	server.R.Mount("/api/moderation", moderationapi.Handler(moderationHandler))

	slog.Info("Anonid control plane ready",
		"adminCapacity", securityConfig.AdminCapacity,
		"pinLength", securityConfig.PinLength,
		"pinTTL", securityConfig.PinTTL,
	)
	server.Run()
}

// bootstrapAdmin promotes the configured first operator. Once any grant
// exists this is a no-op, so leaving the variable set is harmless but noisy.
func bootstrapAdmin(cfg BootstrapConfig, gateService *admingate.GateService) {
	if cfg.AdminProfileID == "" {
		return
	}
	profileID, err := uuid.Parse(cfg.AdminProfileID)
	if err != nil {
		slog.Error("Invalid ADMIN_BOOTSTRAP_PROFILE_ID", "value", cfg.AdminProfileID, "err", err)
		os.Exit(-1)
	}
	if _, err := gateService.Bootstrap(context.Background(), profileID); err != nil {
		slog.Warn("Admin bootstrap skipped", "profileID", profileID, "err", err)
	}
}
