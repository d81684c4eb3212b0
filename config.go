package estateauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config is the full Engine configuration. Obtain a baseline from
// DefaultConfig and override fields; Builder.WithConfig deep-copies it.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Account   AccountConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing. The signing secret is loaded once at
// startup; replacing it invalidates every outstanding token.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the family registry.
type SessionConfig struct {
	RedisPrefix string
	// ImmediateRevocationOnLogout puts the presented access token on the
	// deny list at logout instead of letting it run out its lifetime.
	ImmediateRevocationOnLogout bool
	// CheckRevocationOnEveryRequest makes every authenticated request check
	// the deny list and family liveness, not only Strict routes.
	CheckRevocationOnEveryRequest bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy is a fixed-window ceiling.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds per-class ceilings and the failed-login throttle.
type RateLimitConfig struct {
	RedisPrefix string
	Policies    map[RouteClass]RatePolicy
	// FailOpen admits requests when Redis is unreachable. The default
	// refuses them.
	FailOpen              bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls account status checks.
type AccountConfig struct {
	RequireVerified   bool
	UserLookupTimeout time.Duration
	// UpgradeHashOnLogin re-hashes outdated password hashes when the
	// provider implements PasswordUpdater.
	UpgradeHashOnLogin bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Keys are not set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "estateauth",
		},
		Session: SessionConfig{
			RedisPrefix:                   "ea",
			ImmediateRevocationOnLogout:   true,
			CheckRevocationOnEveryRequest: false,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "ea",
			Policies: map[RouteClass]RatePolicy{
				RoutePublic:        {Limit: 120, Window: time.Minute},
				RouteAuthenticated: {Limit: 300, Window: time.Minute},
				RouteAuth:          {Limit: 10, Window: time.Minute},
				RouteAdmin:         {Limit: 60, Window: time.Minute},
			},
			FailOpen:              false,
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Account: AccountConfig{
			RequireVerified:    true,
			UserLookupTimeout:  2 * time.Second,
			UpgradeHashOnLogin: true,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[RouteClass]RatePolicy, len(cfg.RateLimit.Policies))
		for k, v := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the Engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL < time.Second {
		return errors.New("JWT AccessTTL must be >= 1s")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Rate limits
	if c.RateLimit.RedisPrefix == "" {
		return errors.New("RateLimit RedisPrefix must not be empty")
	}
	for class, p := range c.RateLimit.Policies {
		if class == "" {
			return errors.New("RateLimit Policies contains an empty route class")
		}
		if strings.ContainsRune(string(class), ':') {
			return fmt.Errorf("RateLimit route class %q must not contain ':'", class)
		}
		if p.Limit <= 0 {
			return fmt.Errorf("RateLimit policy %q Limit must be > 0", class)
		}
		if p.Window < time.Millisecond {
			return fmt.Errorf("RateLimit policy %q Window must be >= 1ms", class)
		}
	}
	if c.RateLimit.MaxLoginAttempts < 0 {
		return errors.New("RateLimit MaxLoginAttempts must be >= 0")
	}
	if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldownDuration <= 0 {
		return errors.New("RateLimit LoginCooldownDuration must be > 0 when login throttling is on")
	}

	// Account
	if c.Account.UserLookupTimeout <= 0 {
		return errors.New("Account UserLookupTimeout must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that is valid but probably unintended.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in sorted order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	sort.Strings(out)
	return out
}

// Lint reports settings that weaken the guarantees of the core without
// being invalid.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.AccessTTL > 10*time.Minute {
		add("access_ttl_long", "access tokens are stateless; a long AccessTTL widens the revocation gap")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh families live longer than 30 days")
	}
	if c.JWT.Leeway > 30*time.Second {
		add("leeway_large", "JWT leeway above 30s extends every token's effective lifetime")
	}
	if c.RateLimit.FailOpen {
		add("rate_limit_fail_open", "rate limits are skipped while Redis is unreachable")
	}
	if _, ok := c.RateLimit.Policies[RouteAuth]; !ok {
		add("auth_route_unlimited", "no policy for the auth route class")
	}
	if c.RateLimit.MaxLoginAttempts == 0 {
		add("login_throttle_disabled", "failed logins are not throttled per identifier")
	}
	if !c.Account.RequireVerified {
		add("unverified_accounts_allowed", "unverified accounts can authenticate")
	}
	if !c.Session.ImmediateRevocationOnLogout && c.Session.CheckRevocationOnEveryRequest {
		add("revocation_check_without_deny_list", "every request checks revocation but logout never denies access tokens")
	}
	if c.Audit.Enabled && c.Audit.DropIfFull && c.Audit.BufferSize < 64 {
		add("audit_buffer_small", "audit events will be dropped under moderate load")
	}
	return ws
}
