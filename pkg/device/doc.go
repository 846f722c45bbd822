// Package device provides the device registry, the trust anchor for every
// identity decision in anonid.
//
// Users are recognized by an opaque device token, not a username/password.
// Every inbound request resolves its token through this package first; the
// resolved Device (and the profile bound to it) is the only identity the rest
// of the system trusts. Anything taken from a request body or header past
// this point is untrusted input, never identity.
//
// # Basic Usage
//
//	repo := device.NewInMemDeviceRepository()
//	service := device.NewDeviceService(repo)
//
//	// Resolve the transport-level token into a trusted device
//	d, err := service.Resolve(ctx, token, device.ResolveMeta{
//		UserAgent: r.UserAgent(),
//		IPAddress: clientIP,
//	})
//	if d.Anonymous() {
//		// No identity - upstream decides whether anonymous access is allowed
//	}
//
// Revoked devices still resolve (so audit events can be attributed), but all
// privileged components must treat IsRevoked as a hard stop.
package device
