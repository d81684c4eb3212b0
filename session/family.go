package session

import (
	"strconv"
	"time"
)

// Family is the server-side state of one refresh-token family: the chain of
// refresh tokens descended from a single login.
type Family struct {
	ID             string
	Subject        string
	CurrentTokenID string
	Rotations      int64
	Revoked        bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Live reports whether the family can still mint tokens at now.
func (f *Family) Live(now time.Time) bool {
	return f != nil && !f.Revoked && now.Before(f.ExpiresAt)
}

// Rotation is the outcome of a successful RecordRotation.
type Rotation struct {
	FamilyID  string
	Subject   string
	Counter   int64
	ExpiresAt time.Time
}

const (
	fieldSubject = "sub"
	fieldCurrent = "cur"
	fieldCounter = "ctr"
	fieldRevoked = "rev"
	fieldExpires = "exp"
	fieldCreated = "iat"
)

func familyFromHash(id string, h map[string]string) (*Family, bool) {
	sub, ok := h[fieldSubject]
	if !ok || sub == "" {
		return nil, false
	}
	exp, err := strconv.ParseInt(h[fieldExpires], 10, 64)
	if err != nil {
		return nil, false
	}
	created, _ := strconv.ParseInt(h[fieldCreated], 10, 64)
	ctr, _ := strconv.ParseInt(h[fieldCounter], 10, 64)
	return &Family{
		ID:             id,
		Subject:        sub,
		CurrentTokenID: h[fieldCurrent],
		Rotations:      ctr,
		Revoked:        h[fieldRevoked] == "1",
		CreatedAt:      time.Unix(created, 0),
		ExpiresAt:      time.Unix(exp, 0),
	}, true
}
