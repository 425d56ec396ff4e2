// Package guard decides whether a vault entry may be decrypted for a
// requester. It has no side effects: a denied entry stays on disk until it
// is removed explicitly.
package guard

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

// DefaultMaxAge is how long a vault entry stays playable after download.
const DefaultMaxAge = 30 * 24 * time.Hour

var (
	ErrOwnerMismatch      = errors.New("owner mismatch")
	ErrAppVersionMismatch = errors.New("app version mismatch")
	ErrExpired            = errors.New("entry expired")
)

// Fingerprinter maps an owner id to the fingerprint stored in vault entries.
type Fingerprinter interface {
	OwnerFingerprint(ownerID string) string
}

// FingerprintFunc adapts a function to Fingerprinter.
type FingerprintFunc func(ownerID string) string

func (f FingerprintFunc) OwnerFingerprint(ownerID string) string { return f(ownerID) }

// DeviceFingerprinter fingerprints owners with a per-device secret.
type DeviceFingerprinter struct {
	secret []byte
}

func NewDeviceFingerprinter(secret []byte) *DeviceFingerprinter {
	return &DeviceFingerprinter{secret: secret}
}

func (d *DeviceFingerprinter) OwnerFingerprint(ownerID string) string {
	return cryptox.OwnerFingerprint(d.secret, ownerID)
}

type Policy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

type Guard struct {
	policy Policy
	fp     Fingerprinter
}

// New returns a Guard. Zero policy fields take their defaults.
func New(p Policy, fp Fingerprinter) *Guard {
	if p.MaxAge <= 0 {
		p.MaxAge = DefaultMaxAge
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Guard{policy: p, fp: fp}
}

// Fingerprint returns the owner fingerprint new entries must carry.
func (g *Guard) Fingerprint(ownerID string) string {
	return g.fp.OwnerFingerprint(ownerID)
}

func (g *Guard) Verify(e *models.VaultEntry, ownerID, appVersion string) bool {
	return g.Check(e, ownerID, appVersion) == nil
}

// Check is Verify returning the reason of a denial, wrapped in
// common.ErrAccessDenied.
func (g *Guard) Check(e *models.VaultEntry, ownerID, appVersion string) error {
	if e == nil {
		return fmt.Errorf("%w: no entry", common.ErrAccessDenied)
	}
	if !cryptox.EqualFingerprints(g.fp.OwnerFingerprint(ownerID), e.OwnerFingerprint) {
		return deny(ErrOwnerMismatch)
	}
	if e.AppVersion != appVersion {
		return deny(ErrAppVersionMismatch)
	}
	if g.policy.Now().Sub(e.CreatedAt) > g.policy.MaxAge {
		return deny(ErrExpired)
	}
	return nil
}

// Expired reports whether e is past its maximum age.
func (g *Guard) Expired(e *models.VaultEntry) bool {
	return g.policy.Now().Sub(e.CreatedAt) > g.policy.MaxAge
}

func deny(reason error) error {
	return fmt.Errorf("%w: %w", common.ErrAccessDenied, reason)
}
