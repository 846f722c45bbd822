// Package main runs the anonid control plane without a database using
// in-memory repositories. This is useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Learning the API without database setup
//
// Note: All data is lost when the server stops, and the PIN hashing key is
// ephemeral, so issued PINs do not survive a restart either. For production,
// use cmd/anonid with PostgreSQL.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/chi-demo/app"

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

const serverPort = 4000

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting In-Memory Anonid Control Plane (no database required)")
	slog.Info(strings.Repeat("=", 60))

	securityConfig := config.DefaultSecurityConfig()
	rateLimitConfig := config.DefaultRateLimitConfig()

	deviceRepo := device.NewInMemDeviceRepository()
	profileRepo := profile.NewInMemProfileRepository()
	grantRepo := admingate.NewInMemAdminGrantRepository()
	pinRepo := linkpin.NewInMemLinkPinRepository()
	auditRepo := audit.NewInMemEventRepository()

	notifier := notify.NewSlogNotifier()
	auditService := audit.NewService(auditRepo, notifier)

	deviceService := device.NewDeviceService(deviceRepo)
	binderService := profile.NewBinderService(profileRepo, deviceService)
	gateService := admingate.NewGateService(grantRepo, auditService, securityConfig.AdminCapacity)

	hasher, err := linkpin.NewEphemeralHasher()
	if err != nil {
		slog.Error("Failed creating ephemeral pin hasher", "err", err)
		os.Exit(-1)
	}
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

	adminProfile := seedInitialData(profileRepo, gateService)

	server := app.NewApp(app.WithPort(serverPort))
	app.RegisterHealthzRoutes(server.R)

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

	slog.Info(strings.Repeat("=", 60))
	slog.Info("In-Memory Anonid Control Plane Ready")
	slog.Info("")
	slog.Info("Seeded admin profile: " + adminProfile.ID.String())
	slog.Info("Bind a device to it by calling POST /api/link/redeem from a")
	slog.Info("second device with a PIN issued by the first.")
	slog.Info("")
	slog.Info("API Endpoints:")
	slog.Info("  GET    /api/devices/me        - Who am I")
	slog.Info("  POST   /api/link/pins         - Issue a link PIN")
	slog.Info("  POST   /api/link/redeem       - Redeem a PIN")
	slog.Info("  GET    /api/admin/me          - Admin status")
	slog.Info("  GET    /api/audit/events      - Audit trail (admin)")
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}

// seedInitialData creates a demo profile and promotes it through the
// bootstrap path, the same way a fresh deployment would.
func seedInitialData(profileRepo *profile.InMemProfileRepository, gateService *admingate.GateService) profile.Profile {
	ctx := context.Background()

	adminProfile, err := profileRepo.CreateProfile(ctx, profile.Profile{
		ID:     uuid.New(),
		Handle: "quokka-aurora-42",
	})
	if err != nil {
		slog.Error("Failed seeding admin profile", "err", err)
		os.Exit(-1)
	}

	if _, err := gateService.Bootstrap(ctx, adminProfile.ID); err != nil {
		slog.Error("Failed bootstrapping admin", "err", err)
		os.Exit(-1)
	}

	if _, err := profileRepo.CreateProfile(ctx, profile.Profile{
		ID:     uuid.New(),
		Handle: "wombat-breeze-7",
	}); err != nil {
		slog.Error("Failed seeding demo profile", "err", err)
		os.Exit(-1)
	}

	return adminProfile
}
