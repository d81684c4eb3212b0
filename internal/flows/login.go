package flows

import (
	"context"
	"errors"
	"time"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureMissing
	LoginFailureRateLimited
	LoginFailureUpstream
	LoginFailureCredentials
	LoginFailureAccount
	LoginFailureIssue
)

// LoginResult carries the issued session or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Subject      string
	HashUpgraded bool
	Issue        IssueResult
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	ClientIP func(context.Context) string

	CheckLoginRate     func(ctx context.Context, identifier, ip string) error
	IncrementLoginRate func(ctx context.Context, identifier, ip string) error
	ResetLoginRate     func(ctx context.Context, identifier string) error
	// RateLimited is the throttle's limit error; other throttle errors are
	// store failures.
	RateLimited error
	// ThrottleFailOpen lets logins through while the throttle store is down.
	ThrottleFailOpen bool

	LookupByIdentifier AccountLookup
	LookupTimeout      time.Duration
	UserNotFound       error
	RequireVerified    bool

	VerifyPassword     func(plaintext, storedHash string) bool
	VerifyDummy        func(plaintext string)
	NeedsUpgrade       func(storedHash string) bool
	HashPassword       func(plaintext string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	Issue func(context.Context, Identity) IssueResult
	Warn  func(string, ...any)
}

// RunLogin checks the failed-login throttle, verifies the password in
// constant work whether or not the identifier exists, checks account status
// and starts a new token family.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if identifier == "" || password == "" {
		return LoginResult{Failure: LoginFailureMissing}
	}
	ip := deps.ClientIP(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, identifier, ip); err != nil {
			switch {
			case deps.RateLimited != nil && errors.Is(err, deps.RateLimited):
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			case !deps.ThrottleFailOpen:
				return LoginResult{Failure: LoginFailureUpstream, Err: err}
			default:
				deps.Warn("estateauth: login throttle unavailable, failing open", "error", err)
			}
		}
	}

	acct, outcome, err := LookupAccount(ctx, deps.LookupByIdentifier, identifier, deps.LookupTimeout, deps.UserNotFound)
	switch outcome {
	case LookupUnavailable:
		return LoginResult{Failure: LoginFailureUpstream, Err: err}
	case LookupNotFound:
		deps.VerifyDummy(password)
		recordFailedLogin(ctx, identifier, ip, deps)
		return LoginResult{Failure: LoginFailureCredentials, Err: err}
	}

	if !deps.VerifyPassword(password, acct.PasswordHash) {
		recordFailedLogin(ctx, identifier, ip, deps)
		return LoginResult{Failure: LoginFailureCredentials, Subject: acct.ID}
	}
	if !acct.Usable(deps.RequireVerified) {
		return LoginResult{Failure: LoginFailureAccount, Subject: acct.ID}
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, identifier); err != nil {
			deps.Warn("estateauth: login throttle reset failed", "error", err)
		}
	}

	res := LoginResult{Subject: acct.ID}
	if deps.UpdatePasswordHash != nil && deps.NeedsUpgrade != nil && deps.NeedsUpgrade(acct.PasswordHash) {
		res.HashUpgraded = upgradeHash(ctx, acct, password, deps)
	}

	res.Issue = deps.Issue(ctx, acct.Identity())
	if res.Issue.Failure != IssueFailureNone {
		res.Failure, res.Err = LoginFailureIssue, res.Issue.Err
	}
	return res
}

func recordFailedLogin(ctx context.Context, identifier, ip string, deps LoginDeps) {
	if deps.IncrementLoginRate == nil {
		return
	}
	err := deps.IncrementLoginRate(ctx, identifier, ip)
	if err != nil && (deps.RateLimited == nil || !errors.Is(err, deps.RateLimited)) {
		deps.Warn("estateauth: login throttle increment failed", "error", err)
	}
}

func upgradeHash(ctx context.Context, acct Account, password string, deps LoginDeps) bool {
	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("estateauth: password re-hash failed", "user_id", acct.ID, "error", err)
		return false
	}
	if err := deps.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		deps.Warn("estateauth: password hash update failed", "user_id", acct.ID, "error", err)
		return false
	}
	return true
}
