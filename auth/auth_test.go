package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/auth"
	"github.com/hupe1980/brandmesh/internal/testutil"
)

func TestPrincipalContext(t *testing.T) {
	_, err := auth.FromContext(context.Background())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	ctx := auth.WithPrincipal(context.Background(), auth.Principal{Subject: "ops-1", BrandID: "b1", Role: auth.RoleOperator})
	p, err := auth.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", p.Subject)

	assert.True(t, p.CanAccess("b1"))
	assert.False(t, p.CanAccess("b2"))
	assert.True(t, auth.Principal{Subject: "root", BrandID: "b1", Role: auth.RoleAdmin}.CanAccess("b2"))
}

func TestJWTRoundTrip(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)

	m, err := auth.NewJWTManager(func(o *auth.JWTOptions) {
		o.Expiration = time.Hour
		o.Clock = clock
	})
	require.NoError(t, err)

	token, exp, err := m.IssueToken(auth.Principal{Subject: "marketing", BrandID: "b1", Role: auth.RoleAgent})
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), exp)

	ctx, err := m.Authenticate(context.Background(), token)
	require.NoError(t, err)

	p, err := auth.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{Subject: "marketing", BrandID: "b1", Role: auth.RoleAgent}, p)

	clock.Advance(2 * time.Hour)

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	a, err := auth.NewJWTManager()
	require.NoError(t, err)

	b, err := auth.NewJWTManager()
	require.NoError(t, err)

	token, _, err := a.IssueToken(auth.Principal{Subject: "x", Role: auth.RoleAgent})
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	require.Error(t, err)

	_, _, err = a.IssueToken(auth.Principal{})
	require.Error(t, err)
}
