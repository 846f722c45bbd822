package linkpin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/notify"
	"github.com/hushapp/anonid/pkg/profile"
	"github.com/hushapp/anonid/pkg/secerrors"
)

type linkFixture struct {
	service     *LinkService
	deviceSvc   *device.DeviceService
	profileRepo *profile.InMemProfileRepository
	pinRepo     *InMemLinkPinRepository
	auditRepo   *audit.InMemEventRepository
	hasher      *Hasher
	now         time.Time
}

func setupLink(t *testing.T) *linkFixture {
	f := &linkFixture{
		profileRepo: profile.NewInMemProfileRepository(),
		pinRepo:     NewInMemLinkPinRepository(),
		auditRepo:   audit.NewInMemEventRepository(),
		now:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	deviceRepo := device.NewInMemDeviceRepository()
	f.deviceSvc = device.NewDeviceService(deviceRepo)
	binder := profile.NewBinderService(f.profileRepo, f.deviceSvc)
	auditService := audit.NewService(f.auditRepo, notify.NewMockNotifier())

	hasher, err := NewEphemeralHasher()
	require.NoError(t, err)
	f.hasher = hasher

	f.service = NewLinkService(f.pinRepo, binder, auditService, hasher,
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

// boundCreator registers a device and binds it to a fresh profile
func (f *linkFixture) boundCreator(t *testing.T, token string) device.Device {
	ctx := context.Background()

	p, err := f.profileRepo.CreateProfile(ctx, profile.Profile{ID: uuid.New(), Handle: "handle-" + token})
	require.NoError(t, err)

	_, err = f.deviceSvc.Resolve(ctx, token, device.ResolveMeta{})
	require.NoError(t, err)
	d, err := f.deviceSvc.BindProfile(ctx, token, p.ID)
	require.NoError(t, err)
	return d
}

// freshDevice registers an unbound device
func (f *linkFixture) freshDevice(t *testing.T, token string) device.Device {
	d, err := f.deviceSvc.Resolve(context.Background(), token, device.ResolveMeta{})
	require.NoError(t, err)
	return d
}

func (f *linkFixture) eventKinds(t *testing.T) []audit.Kind {
	events, err := f.auditRepo.FindRecentEvents(context.Background(), 100)
	require.NoError(t, err)
	kinds := make([]audit.Kind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestLinkService_IssueAndRedeem(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	redeemer := f.freshDevice(t, "tok-laptop")

	plaintext, pin, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, plaintext, DefaultPinLength)
	assert.Equal(t, creator.DeviceID, pin.CreatedByDeviceID)
	assert.Equal(t, f.now.Add(DefaultPinTTL), pin.ExpiresAt)

	linked, err := f.service.Redeem(ctx, redeemer, plaintext)
	require.NoError(t, err)
	assert.Equal(t, creator.ProfileID.UUID, linked.ID)

	// The redeemer device now carries the binding
	d, err := f.deviceSvc.GetDevice(ctx, redeemer.DeviceID)
	require.NoError(t, err)
	require.True(t, d.HasProfile())
	assert.Equal(t, creator.ProfileID.UUID, d.ProfileID.UUID)

	assert.Contains(t, f.eventKinds(t), audit.KindPinIssued)
	assert.Contains(t, f.eventKinds(t), audit.KindDeviceLinked)
}

func TestLinkService_IssuePin_Preconditions(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	t.Run("UnboundCreator", func(t *testing.T) {
		_, _, err := f.service.IssuePin(ctx, f.freshDevice(t, "tok-unbound"))
		assert.ErrorIs(t, err, secerrors.ErrProfileRequired)
	})

	t.Run("AnonymousCreator", func(t *testing.T) {
		_, _, err := f.service.IssuePin(ctx, device.Device{})
		assert.ErrorIs(t, err, secerrors.ErrProfileRequired)
	})

	t.Run("RevokedCreator", func(t *testing.T) {
		creator := f.boundCreator(t, "tok-revoked")
		creator.IsRevoked = true
		_, _, err := f.service.IssuePin(ctx, creator)
		assert.ErrorIs(t, err, secerrors.ErrDeviceRevoked)
	})
}

func TestLinkService_PlaintextNeverStored(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	plaintext, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	pins, err := f.pinRepo.FindPinsByCreator(ctx, creator.DeviceID)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.NotEqual(t, plaintext, pins[0].PinHash)
	assert.True(t, f.hasher.Verify(plaintext, pins[0].PinHash))
}

func TestLinkService_Redeem_Failures(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	plaintext, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	t.Run("WrongPin", func(t *testing.T) {
		wrong := "000000"
		if wrong == plaintext {
			wrong = "000001"
		}
		_, err := f.service.Redeem(ctx, f.freshDevice(t, "tok-wrong"), wrong)
		assert.ErrorIs(t, err, secerrors.ErrInvalidOrExpiredPin)
	})

	t.Run("AnonymousRedeemer", func(t *testing.T) {
		_, err := f.service.Redeem(ctx, device.Device{}, plaintext)
		assert.ErrorIs(t, err, secerrors.ErrInvalidOrExpiredPin)
	})

	t.Run("RevokedRedeemer", func(t *testing.T) {
		redeemer := f.freshDevice(t, "tok-revoked")
		redeemer.IsRevoked = true
		_, err := f.service.Redeem(ctx, redeemer, plaintext)
		assert.ErrorIs(t, err, secerrors.ErrDeviceRevoked)
	})

	t.Run("DoubleRedeem", func(t *testing.T) {
		_, err := f.service.Redeem(ctx, f.freshDevice(t, "tok-first"), plaintext)
		require.NoError(t, err)

		// The losing attempt gets the same generic answer as a wrong guess
		_, err = f.service.Redeem(ctx, f.freshDevice(t, "tok-second"), plaintext)
		assert.ErrorIs(t, err, secerrors.ErrInvalidOrExpiredPin)
	})

	// Every failure above landed on the audit trail with a precise reason
	kinds := f.eventKinds(t)
	var failures int
	for _, k := range kinds {
		if k == audit.KindPinRedeemFailed {
			failures++
		}
	}
	assert.Equal(t, 3, failures)
}

func TestLinkService_Redeem_TTL(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	plaintext, pin, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	t.Run("JustBeforeExpiry", func(t *testing.T) {
		f.now = pin.ExpiresAt.Add(-time.Second)
		_, err := f.service.Redeem(ctx, f.freshDevice(t, "tok-early"), plaintext)
		assert.NoError(t, err)
	})

	t.Run("AtExpiry", func(t *testing.T) {
		plaintext2, pin2, err := f.service.IssuePin(ctx, creator)
		require.NoError(t, err)

		f.now = pin2.ExpiresAt
		_, err = f.service.Redeem(ctx, f.freshDevice(t, "tok-late"), plaintext2)
		assert.ErrorIs(t, err, secerrors.ErrInvalidOrExpiredPin)
	})
}

func TestLinkService_Redeem_BoundRedeemerConflict(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	other := f.boundCreator(t, "tok-other") // bound to a different profile

	plaintext, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	_, err = f.service.Redeem(ctx, other, plaintext)
	require.Error(t, err)
	assert.True(t, secerrors.IsCode(err, secerrors.ErrCodeForbidden))

	// The existing binding is untouched
	d, err := f.deviceSvc.GetDevice(ctx, other.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, other.ProfileID.UUID, d.ProfileID.UUID)
}

func TestLinkService_Redeem_Concurrent(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	plaintext, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	const contenders = 10
	redeemers := make([]device.Device, contenders)
	for i := range redeemers {
		redeemers[i] = f.freshDevice(t, "tok-race-"+uuid.NewString())
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	wg.Add(contenders)
	for i := 0; i < contenders; i++ {
		go func(d device.Device) {
			defer wg.Done()
			if _, err := f.service.Redeem(ctx, d, plaintext); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(redeemers[i])
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	// Exactly one redeemer ended up bound
	bound := 0
	for _, r := range redeemers {
		d, err := f.deviceSvc.GetDevice(ctx, r.DeviceID)
		require.NoError(t, err)
		if d.HasProfile() {
			bound++
		}
	}
	assert.Equal(t, 1, bound)
}

func TestLinkService_MultipleActivePins(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")

	pin1, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)
	pin2, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)
	require.NotEqual(t, pin1, pin2)

	_, err = f.service.Redeem(ctx, f.freshDevice(t, "tok-a"), pin1)
	assert.NoError(t, err)
	_, err = f.service.Redeem(ctx, f.freshDevice(t, "tok-b"), pin2)
	assert.NoError(t, err)
}

func TestLinkService_RevokePin(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")
	plaintext, pin, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	t.Run("NonCreatorCannotRevoke", func(t *testing.T) {
		err := f.service.RevokePin(ctx, f.boundCreator(t, "tok-other"), pin.ID)
		require.Error(t, err)
		assert.True(t, secerrors.IsCode(err, secerrors.ErrCodeNotFound))
	})

	t.Run("CreatorRevokes", func(t *testing.T) {
		require.NoError(t, f.service.RevokePin(ctx, creator, pin.ID))

		_, err := f.service.Redeem(ctx, f.freshDevice(t, "tok-late"), plaintext)
		assert.ErrorIs(t, err, secerrors.ErrInvalidOrExpiredPin)

		assert.Contains(t, f.eventKinds(t), audit.KindPinRevoked)
	})
}

func TestLinkService_PurgeExpired(t *testing.T) {
	f := setupLink(t)
	ctx := context.Background()

	creator := f.boundCreator(t, "tok-phone")

	plaintext, _, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)
	_, pin2, err := f.service.IssuePin(ctx, creator)
	require.NoError(t, err)

	// First pin gets redeemed and must survive the purge
	_, err = f.service.Redeem(ctx, f.freshDevice(t, "tok-a"), plaintext)
	require.NoError(t, err)

	f.now = pin2.ExpiresAt.Add(time.Minute)
	purged, err := f.service.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	pins, err := f.pinRepo.FindPinsByCreator(ctx, creator.DeviceID)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.False(t, pins[0].RedeemedAt.IsZero())
}

func TestGeneratePin(t *testing.T) {
	t.Run("LengthAndCharset", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			pin, err := GeneratePin(6)
			require.NoError(t, err)
			require.Len(t, pin, 6)
			for _, c := range pin {
				assert.True(t, c >= '0' && c <= '9')
			}
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := GeneratePin(3)
		assert.Error(t, err)
	})
}

func TestHasher(t *testing.T) {
	t.Run("DeterministicPerSecret", func(t *testing.T) {
		h1, err := NewHasher("secret-a")
		require.NoError(t, err)
		h2, err := NewHasher("secret-a")
		require.NoError(t, err)
		h3, err := NewHasher("secret-b")
		require.NoError(t, err)

		assert.Equal(t, h1.Hash("123456"), h2.Hash("123456"))
		assert.NotEqual(t, h1.Hash("123456"), h3.Hash("123456"))
	})

	t.Run("Verify", func(t *testing.T) {
		h, err := NewHasher("secret")
		require.NoError(t, err)
		stored := h.Hash("424242")
		assert.True(t, h.Verify("424242", stored))
		assert.False(t, h.Verify("424243", stored))
	})

	t.Run("EmptySecretRefused", func(t *testing.T) {
		_, err := NewHasher("")
		assert.Error(t, err)
	})
}
