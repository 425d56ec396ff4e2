package guard

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func newGuard(now time.Time, maxAge time.Duration) *Guard {
	return New(Policy{MaxAge: maxAge, Now: func() time.Time { return now }},
		NewDeviceFingerprinter([]byte("device-secret")))
}

func entryFor(g *Guard, owner string) *models.VaultEntry {
	return &models.VaultEntry{
		ItemID:           "a1",
		OwnerFingerprint: g.Fingerprint(owner),
		CreatedAt:        created,
		AppVersion:       "1.2.3",
	}
}

func TestVerify_Allowed(t *testing.T) {
	g := newGuard(created.Add(time.Hour), DefaultMaxAge)

	assert.True(t, g.Verify(entryFor(g, "u1"), "u1", "1.2.3"))
	assert.NoError(t, g.Check(entryFor(g, "u1"), "u1", "1.2.3"))
}

func TestVerify_OwnerIsolation(t *testing.T) {
	g := newGuard(created, DefaultMaxAge)

	owners := []string{"u1", "u2", "", "U1", "u1 ", "00000000-0000-0000-0000-000000000000"}
	for _, a := range owners {
		for _, b := range owners {
			if a == b {
				continue
			}
			t.Run(fmt.Sprintf("%q/%q", a, b), func(t *testing.T) {
				e := entryFor(g, a)
				assert.False(t, g.Verify(e, b, "1.2.3"))
				err := g.Check(e, b, "1.2.3")
				require.ErrorIs(t, err, common.ErrAccessDenied)
				require.ErrorIs(t, err, ErrOwnerMismatch)
			})
		}
	}
}

func TestVerify_FingerprintDependsOnDeviceSecret(t *testing.T) {
	a := NewDeviceFingerprinter([]byte("device-a"))
	b := NewDeviceFingerprinter([]byte("device-b"))

	assert.NotEqual(t, a.OwnerFingerprint("u1"), b.OwnerFingerprint("u1"))
	assert.Equal(t, a.OwnerFingerprint("u1"), a.OwnerFingerprint("u1"))
}

func TestVerify_AppVersion(t *testing.T) {
	g := newGuard(created, DefaultMaxAge)

	err := g.Check(entryFor(g, "u1"), "u1", "1.2.4")
	require.ErrorIs(t, err, common.ErrAccessDenied)
	require.ErrorIs(t, err, ErrAppVersionMismatch)
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	maxAge := 30 * 24 * time.Hour

	before := newGuard(created.Add(maxAge-time.Second), maxAge)
	assert.True(t, before.Verify(entryFor(before, "u1"), "u1", "1.2.3"))

	at := newGuard(created.Add(maxAge), maxAge)
	assert.True(t, at.Verify(entryFor(at, "u1"), "u1", "1.2.3"))

	after := newGuard(created.Add(maxAge+time.Second), maxAge)
	e := entryFor(after, "u1")
	assert.False(t, after.Verify(e, "u1", "1.2.3"))
	require.ErrorIs(t, after.Check(e, "u1", "1.2.3"), ErrExpired)
	assert.True(t, after.Expired(e))
}

func TestVerify_NilEntry(t *testing.T) {
	g := newGuard(created, DefaultMaxAge)

	require.ErrorIs(t, g.Check(nil, "u1", "1.2.3"), common.ErrAccessDenied)
}

func TestNew_Defaults(t *testing.T) {
	g := New(Policy{}, FingerprintFunc(func(o string) string { return "fp-" + o }))

	e := &models.VaultEntry{OwnerFingerprint: "fp-u1", CreatedAt: time.Now().Add(-29 * 24 * time.Hour), AppVersion: "v"}
	assert.True(t, g.Verify(e, "u1", "v"))

	e.CreatedAt = time.Now().Add(-31 * 24 * time.Hour)
	assert.False(t, g.Verify(e, "u1", "v"))
}
