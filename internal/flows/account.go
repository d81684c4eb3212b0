package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/estateauth/permission"
)

// Account is the flow-local view of a user record.
type Account struct {
	ID           string
	PasswordHash string
	Role         permission.Role
	Permissions  permission.Set
	Active       bool
	Verified     bool
	Deleted      bool
}

// Usable reports whether the account may hold a session.
func (a Account) Usable(requireVerified bool) bool {
	if a.Deleted || !a.Active || !a.Role.Valid() {
		return false
	}
	return a.Verified || !requireVerified
}

// Identity resolves the account to the role and effective permissions
// tokens are minted with.
func (a Account) Identity() Identity {
	return Identity{
		Subject:     a.ID,
		Role:        a.Role,
		Permissions: permission.Effective(a.Role, a.Permissions),
	}
}

// AccountLookup resolves a key (subject id or login identifier) to an account.
type AccountLookup func(ctx context.Context, key string) (Account, error)

// LookupOutcome classifies an account lookup.
type LookupOutcome int

const (
	LookupFound LookupOutcome = iota
	LookupNotFound
	LookupUnavailable
)

type lookupReply struct {
	acct Account
	err  error
}

// LookupAccount calls lookup bounded by timeout, even when the provider
// ignores ctx. notFound classifies the provider's not-found error; every
// other error, including the deadline, is an unavailable upstream.
func LookupAccount(ctx context.Context, lookup AccountLookup, key string, timeout time.Duration, notFound error) (Account, LookupOutcome, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply := make(chan lookupReply, 1)
	go func() {
		acct, err := lookup(ctx, key)
		reply <- lookupReply{acct: acct, err: err}
	}()

	var r lookupReply
	select {
	case r = <-reply:
	case <-ctx.Done():
		return Account{}, LookupUnavailable, ctx.Err()
	}

	if r.err == nil {
		return r.acct, LookupFound, nil
	}
	if notFound != nil && errors.Is(r.err, notFound) {
		return Account{}, LookupNotFound, r.err
	}
	return Account{}, LookupUnavailable, r.err
}
