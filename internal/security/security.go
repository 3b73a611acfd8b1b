// Package security implements the pluggable license/math-salt provider:
// a no-op development stub and an HTTP-backed remote check, the seam
// original_source/src/core/security.py's ICryptoProvider abstraction
// describes.
package security

// Provider verifies the running deployment is licensed and hands out the
// current math salt, embedded per-frame in the ring header and rotated
// periodically by the orchestrator's security thread.
type Provider interface {
	VerifyLicense() (bool, error)
	MathSalt() float64
}

// DevProvider always succeeds with a fixed salt, matching the Python
// original's DevCryptoProvider stub. This is the default when no remote
// license endpoint is configured.
type DevProvider struct{}

// NewDevProvider constructs the always-succeeding development provider.
func NewDevProvider() *DevProvider { return &DevProvider{} }

func (DevProvider) VerifyLicense() (bool, error) { return true, nil }
func (DevProvider) MathSalt() float64            { return 1.0 }

// Rotate returns a salt derived from the given tick, in [1.0, 1.996] for a
// non-negative tick. No
// provider in this package calls it: RemoteProvider's salt changes only
// when a license check returns a new one.
func Rotate(tick int64) float64 {
	return 1.0 + float64(tick%997)/1000.0
}

var _ Provider = (*DevProvider)(nil)
