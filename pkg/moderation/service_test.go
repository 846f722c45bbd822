package moderation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/anonid/pkg/admingate"
	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/notify"
	"github.com/hushapp/anonid/pkg/secerrors"
	"github.com/hushapp/anonid/pkg/suspicion"
)

type moderationFixture struct {
	service    *ModerationService
	deviceRepo *device.InMemDeviceRepository
	auditRepo  *audit.InMemEventRepository
	notifier   *notify.MockNotifier
	admin      device.Device
}

func setupModeration(t *testing.T) *moderationFixture {
	f := &moderationFixture{
		deviceRepo: device.NewInMemDeviceRepository(),
		auditRepo:  audit.NewInMemEventRepository(),
		notifier:   notify.NewMockNotifier(),
	}
	auditService := audit.NewService(f.auditRepo, f.notifier)
	gateService := admingate.NewGateService(admingate.NewInMemAdminGrantRepository(), auditService, 2)
	scorer := suspicion.NewScorer(f.deviceRepo, auditService, suspicion.WithThreshold(2))
	f.service = NewModerationService(f.deviceRepo, gateService, scorer, auditService, f.notifier)

	adminProfile := uuid.New()
	_, err := gateService.Bootstrap(context.Background(), adminProfile)
	require.NoError(t, err)
	f.admin = device.Device{
		DeviceID:  "admin-device",
		ProfileID: uuid.NullUUID{UUID: adminProfile, Valid: true},
	}
	return f
}

func (f *moderationFixture) registerDevice(t *testing.T, token string) device.Device {
	d, err := f.deviceRepo.UpsertDevice(context.Background(), device.UpsertDeviceParams{DeviceID: token})
	require.NoError(t, err)
	return d
}

func (f *moderationFixture) kindCount(t *testing.T, kind audit.Kind) int {
	events, err := f.auditRepo.FindRecentEvents(context.Background(), 100)
	require.NoError(t, err)
	count := 0
	for _, e := range events {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

func TestModerationService_RecordVerdict(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	origin := f.registerDevice(t, "tok-poster")

	t.Run("CleanVerdictIsDropped", func(t *testing.T) {
		err := f.service.RecordVerdict(ctx, origin, Verdict{ContentID: "c-1", IsFlagged: false})
		require.NoError(t, err)
		assert.Equal(t, 0, f.kindCount(t, audit.KindContentFlagged))
	})

	t.Run("FlaggedVerdictAuditsAndScores", func(t *testing.T) {
		err := f.service.RecordVerdict(ctx, origin, Verdict{
			ContentID:  "c-2",
			IsFlagged:  true,
			Confidence: 0.97,
			IssueKinds: []string{"harassment"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, f.kindCount(t, audit.KindContentFlagged))

		d, err := f.deviceRepo.GetDevice(ctx, origin.DeviceID)
		require.NoError(t, err)
		assert.Equal(t, 1, d.FailedAuthCount)
	})

	t.Run("RepeatedFlagsTripSuspicion", func(t *testing.T) {
		err := f.service.RecordVerdict(ctx, origin, Verdict{ContentID: "c-3", IsFlagged: true})
		require.NoError(t, err)

		d, err := f.deviceRepo.GetDevice(ctx, origin.DeviceID)
		require.NoError(t, err)
		assert.True(t, d.IsSuspicious)
	})

	t.Run("AnonymousOriginIsDropped", func(t *testing.T) {
		err := f.service.RecordVerdict(ctx, device.Device{}, Verdict{ContentID: "c-4", IsFlagged: true})
		require.NoError(t, err)
	})
}

func TestModerationService_RevokeDevice(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	target := f.registerDevice(t, "tok-target")

	t.Run("NonAdminDenied", func(t *testing.T) {
		pleb := device.Device{DeviceID: "tok-pleb", ProfileID: uuid.NullUUID{UUID: uuid.New(), Valid: true}}
		_, err := f.service.RevokeDevice(ctx, pleb, target.DeviceID)
		require.Error(t, err)
		assert.True(t, secerrors.IsCode(err, secerrors.ErrCodeForbidden))
	})

	t.Run("AdminRevokes", func(t *testing.T) {
		revoked, err := f.service.RevokeDevice(ctx, f.admin, target.DeviceID)
		require.NoError(t, err)
		assert.True(t, revoked.IsRevoked)
		assert.Equal(t, 1, f.kindCount(t, audit.KindDeviceRevoked))
	})

	t.Run("RevocationIsSticky", func(t *testing.T) {
		// Activity on the device never clears the flag
		_, err := f.deviceRepo.UpsertDevice(ctx, device.UpsertDeviceParams{DeviceID: target.DeviceID})
		require.NoError(t, err)

		d, err := f.deviceRepo.GetDevice(ctx, target.DeviceID)
		require.NoError(t, err)
		assert.True(t, d.IsRevoked)
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		_, err := f.service.RevokeDevice(ctx, f.admin, "tok-missing")
		require.Error(t, err)
		assert.True(t, secerrors.IsCode(err, secerrors.ErrCodeNotFound))
	})
}

func TestModerationService_ReinstateDevice(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	target := f.registerDevice(t, "tok-target")
	_, err := f.service.RevokeDevice(ctx, f.admin, target.DeviceID)
	require.NoError(t, err)

	t.Run("NonAdminDenied", func(t *testing.T) {
		_, err := f.service.ReinstateDevice(ctx, device.Device{DeviceID: "tok-anon"}, target.DeviceID)
		assert.ErrorIs(t, err, secerrors.ErrProfileRequired)
	})

	t.Run("AdminReinstates", func(t *testing.T) {
		d, err := f.service.ReinstateDevice(ctx, f.admin, target.DeviceID)
		require.NoError(t, err)
		assert.False(t, d.IsRevoked)
		assert.Equal(t, 1, f.kindCount(t, audit.KindDeviceReinstated))
	})
}

type recordingResetter struct {
	resets []string
}

func (r *recordingResetter) Reset(deviceID string) {
	r.resets = append(r.resets, deviceID)
}

func TestModerationService_ReinstateClearsLimits(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	resetter := &recordingResetter{}
	WithLimitResetter(resetter)(f.service)

	target := f.registerDevice(t, "tok-target")
	_, err := f.service.RevokeDevice(ctx, f.admin, target.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, resetter.resets, "revocation should leave throttle state alone")

	_, err = f.service.ReinstateDevice(ctx, f.admin, target.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, []string{target.DeviceID}, resetter.resets)
}

func TestModerationService_FlaggedEvents(t *testing.T) {
	f := setupModeration(t)
	ctx := context.Background()

	origin := f.registerDevice(t, "tok-poster")
	require.NoError(t, f.service.RecordVerdict(ctx, origin, Verdict{ContentID: "c-1", IsFlagged: true}))

	t.Run("NonAdminDenied", func(t *testing.T) {
		_, err := f.service.FlaggedEvents(ctx, device.Device{}, 10)
		assert.Error(t, err)
	})

	t.Run("AdminSeesFlags", func(t *testing.T) {
		flags, err := f.service.FlaggedEvents(ctx, f.admin, 10)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		assert.Equal(t, "c-1", flags[0].Metadata["content_id"])
	})
}
