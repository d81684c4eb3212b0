package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth/permission"
)

// FuzzParseTokens feeds arbitrary strings to both parsers.
// Invalid inputs must be rejected with errors, never panics.
func FuzzParseTokens(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		RequireIAT:    true,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}

	access, _, err := mgr.IssueAccess("uid1", permission.RoleAgent, permission.Of(permission.LeadRead), "fam1")
	if err != nil {
		f.Fatal(err)
	}
	refresh, _, err := mgr.IssueRefresh("uid1", "fam1", time.Time{})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(access)
	f.Add(refresh)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJ1aWQiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		if claims, err := mgr.ParseAccess(input); err == nil && claims == nil {
			t.Fatal("ParseAccess returned nil claims without error")
		}
		if claims, err := mgr.ParseRefresh(input); err == nil && claims == nil {
			t.Fatal("ParseRefresh returned nil claims without error")
		}
	})
}
