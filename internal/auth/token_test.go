package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestOwnerFromToken(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		claims  Claims
		want    string
		wantErr bool
	}{
		{
			name:   "subject",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}},
			want:   "u1",
		},
		{
			name:   "user id claim",
			claims: Claims{UserID: "u2"},
			want:   "u2",
		},
		{
			name:   "subject wins",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, UserID: "u2"},
			want:   "u1",
		},
		{
			name:    "expired",
			claims:  Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Second))}},
			wantErr: true,
		},
		{
			name:    "no owner",
			claims:  Claims{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OwnerFromToken(generateToken(t, tt.claims), now)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOwnerFromToken_Malformed(t *testing.T) {
	_, err := OwnerFromToken("not-a-jwt", time.Now())
	require.ErrorIs(t, err, ErrInvalidToken)
}
