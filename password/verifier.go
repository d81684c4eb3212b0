package password

import "strings"

// Hasher is implemented by each supported hash scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Verifier checks plaintext secrets against stored hashes of any supported
// scheme and issues new hashes with argon2id.
//
// Verifier is safe for concurrent use.
type Verifier struct {
	argon  *Argon2
	bcrypt *Bcrypt
	dummy  string
}

// NewVerifier builds a Verifier using cfg for new argon2id hashes.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	b, err := NewBcrypt(0)
	if err != nil {
		return nil, err
	}
	dummy, err := a.Hash("estateauth-dummy-password")
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a, bcrypt: b, dummy: dummy}, nil
}

// Hash returns an argon2id hash of password.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify reports whether plaintext matches storedHash. Any malformed or
// unsupported hash is a non-match.
func (v *Verifier) Verify(plaintext, storedHash string) bool {
	h := v.schemeFor(storedHash)
	if h == nil {
		return false
	}
	ok, err := h.Verify(plaintext, storedHash)
	return err == nil && ok
}

// VerifyDummy burns the same work as a real argon2id verification. Login
// calls it when the identifier is unknown.
func (v *Verifier) VerifyDummy(plaintext string) {
	_, _ = v.argon.Verify(plaintext, v.dummy)
}

// NeedsUpgrade reports whether storedHash should be replaced with a fresh
// argon2id hash after the next successful login.
func (v *Verifier) NeedsUpgrade(storedHash string) bool {
	h := v.schemeFor(storedHash)
	if h == nil {
		return false
	}
	up, err := h.NeedsUpgrade(storedHash)
	return err == nil && up
}

func (v *Verifier) schemeFor(storedHash string) Hasher {
	switch {
	case strings.HasPrefix(storedHash, argon2Prefix):
		return v.argon
	case isBcrypt(storedHash):
		return v.bcrypt
	default:
		return nil
	}
}
