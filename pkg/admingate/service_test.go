package admingate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/notify"
	"github.com/hushapp/anonid/pkg/secerrors"
)

func setupGate(t *testing.T, capacity int) (*GateService, *audit.InMemEventRepository) {
	auditRepo := audit.NewInMemEventRepository()
	auditService := audit.NewService(auditRepo, notify.NewMockNotifier())
	return NewGateService(NewInMemAdminGrantRepository(), auditService, capacity), auditRepo
}

// adminActor bootstraps a fresh admin and returns a device bound to it
func adminActor(t *testing.T, gate *GateService) device.Device {
	profileID := uuid.New()
	_, err := gate.Bootstrap(context.Background(), profileID)
	require.NoError(t, err)
	return device.Device{
		DeviceID:  "admin-device",
		ProfileID: uuid.NullUUID{UUID: profileID, Valid: true},
	}
}

func boundDevice(deviceID string) device.Device {
	return device.Device{
		DeviceID:  deviceID,
		ProfileID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
	}
}

func TestGateService_IsAdmin(t *testing.T) {
	gate, _ := setupGate(t, 2)
	ctx := context.Background()

	actor := adminActor(t, gate)

	isAdmin, err := gate.IsAdmin(ctx, actor.ProfileID.UUID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = gate.IsAdmin(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestGateService_Grant(t *testing.T) {
	ctx := context.Background()

	t.Run("GrantAndRegrant", func(t *testing.T) {
		gate, _ := setupGate(t, 2)
		actor := adminActor(t, gate)
		target := uuid.New()

		grant, err := gate.Grant(ctx, actor, target)
		require.NoError(t, err)
		assert.Equal(t, target, grant.ProfileID)
		assert.Equal(t, RoleAdmin, grant.Role)

		// Regrant is idempotent, surfaced as ErrAlreadyGranted with the
		// refreshed grant attached
		regrant, err := gate.Grant(ctx, actor, target)
		assert.ErrorIs(t, err, secerrors.ErrAlreadyGranted)
		assert.Equal(t, target, regrant.ProfileID)
		assert.False(t, regrant.UpdatedAt.Before(grant.UpdatedAt))
	})

	t.Run("CapacityCeiling", func(t *testing.T) {
		gate, auditRepo := setupGate(t, 2)
		actor := adminActor(t, gate) // occupies slot 1

		_, err := gate.Grant(ctx, actor, uuid.New()) // slot 2
		require.NoError(t, err)

		_, err = gate.Grant(ctx, actor, uuid.New())
		assert.ErrorIs(t, err, secerrors.ErrAdminCapacityExceeded)

		events, err := auditRepo.FindRecentEvents(context.Background(), 100)
		require.NoError(t, err)
		var denied int
		for _, e := range events {
			if e.Kind == audit.KindAdminDenied {
				denied++
			}
		}
		assert.Equal(t, 1, denied)
	})

	t.Run("RevokeFreesSlot", func(t *testing.T) {
		gate, _ := setupGate(t, 2)
		actor := adminActor(t, gate)
		second := uuid.New()

		_, err := gate.Grant(ctx, actor, second)
		require.NoError(t, err)

		_, err = gate.Grant(ctx, actor, uuid.New())
		require.ErrorIs(t, err, secerrors.ErrAdminCapacityExceeded)

		require.NoError(t, gate.Revoke(ctx, actor, second))

		_, err = gate.Grant(ctx, actor, uuid.New())
		assert.NoError(t, err)
	})
}

func TestGateService_Grant_Concurrent(t *testing.T) {
	gate, _ := setupGate(t, 3)
	ctx := context.Background()
	actor := adminActor(t, gate) // occupies one slot

	const contenders = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	wg.Add(contenders)
	for i := 0; i < contenders; i++ {
		go func() {
			defer wg.Done()
			if _, err := gate.Grant(ctx, actor, uuid.New()); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Capacity 3 minus the bootstrap admin leaves exactly 2 winners
	assert.Equal(t, 2, granted)

	grants, err := gate.FindGrants(ctx)
	require.NoError(t, err)
	assert.Len(t, grants, 3)
}

func TestGateService_ActorChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("RevokedActorHardStop", func(t *testing.T) {
		gate, auditRepo := setupGate(t, 2)
		actor := adminActor(t, gate)
		actor.IsRevoked = true

		_, err := gate.Grant(ctx, actor, uuid.New())
		assert.ErrorIs(t, err, secerrors.ErrDeviceRevoked)

		events, err := auditRepo.FindRecentEvents(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		assert.Equal(t, audit.KindAdminDenied, events[0].Kind)
	})

	t.Run("AnonymousActor", func(t *testing.T) {
		gate, _ := setupGate(t, 2)
		adminActor(t, gate)

		_, err := gate.Grant(ctx, device.Device{}, uuid.New())
		assert.ErrorIs(t, err, secerrors.ErrProfileRequired)
	})

	t.Run("UnboundActor", func(t *testing.T) {
		gate, _ := setupGate(t, 2)
		adminActor(t, gate)

		_, err := gate.Grant(ctx, device.Device{DeviceID: "tok-unbound"}, uuid.New())
		assert.ErrorIs(t, err, secerrors.ErrProfileRequired)
	})

	t.Run("NonAdminActor", func(t *testing.T) {
		gate, _ := setupGate(t, 2)
		adminActor(t, gate)

		_, err := gate.Grant(ctx, boundDevice("tok-pleb"), uuid.New())
		require.Error(t, err)
		assert.True(t, secerrors.IsCode(err, secerrors.ErrCodeForbidden))
	})

	t.Run("SuspiciousActorAllowed", func(t *testing.T) {
		gate, _ := setupGate(t, 2)
		actor := adminActor(t, gate)
		actor.IsSuspicious = true

		// Suspicion is a soft signal, the action goes through
		_, err := gate.Grant(ctx, actor, uuid.New())
		assert.NoError(t, err)
	})
}

func TestGateService_Bootstrap(t *testing.T) {
	gate, auditRepo := setupGate(t, 2)
	ctx := context.Background()

	first := uuid.New()
	grant, err := gate.Bootstrap(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first, grant.ProfileID)

	// One shot only, even for a different profile
	_, err = gate.Bootstrap(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBootstrapDone) || secerrors.IsCode(err, secerrors.ErrCodeForbidden))

	events, err := auditRepo.FindRecentEvents(ctx, 10)
	require.NoError(t, err)
	var bootstraps int
	for _, e := range events {
		if e.Kind == audit.KindAdminBootstrap {
			bootstraps++
		}
	}
	assert.Equal(t, 1, bootstraps)
}
