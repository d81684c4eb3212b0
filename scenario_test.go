package estateauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth/permission"
)

func TestLoginRefreshReplayScenario(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "buyer-7", "buyer7@example.com", permission.RoleBuyer)
	ctx := WithClientIP(context.Background(), "203.0.113.70")
	protected := Requirement{
		RequireAuth:         true,
		AllowedRoles:        permission.RolesOf(permission.RoleBuyer),
		RequiredPermissions: permission.Of(permission.FavoritesManage),
	}

	original, err := env.engine.Login(ctx, "buyer7@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	id, err := env.engine.Authenticate(ctx, original.AccessToken, protected)
	if err != nil {
		t.Fatalf("protected call failed: %v", err)
	}
	if id.Subject != "buyer-7" {
		t.Fatalf("unexpected subject %q", id.Subject)
	}

	env.advance(original.ExpiresIn + time.Second)
	if _, err := env.engine.Authenticate(ctx, original.AccessToken, protected); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated after access expiry, got %v", err)
	}

	rotated, err := env.engine.RefreshSession(ctx, original.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, rotated.AccessToken, protected); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}

	if _, err := env.engine.RefreshSession(ctx, original.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected replay detected for stale refresh token, got %v", err)
	}
	if _, err := env.engine.RefreshSession(ctx, rotated.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected newest refresh token revoked by replay, got %v", err)
	}

	// Strict routes see the revocation before the access token expires.
	if _, err := env.engine.Authenticate(ctx, rotated.AccessToken, Requirement{RequireAuth: true, Strict: true}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected strict route to reject the revoked family, got %v", err)
	}
}
