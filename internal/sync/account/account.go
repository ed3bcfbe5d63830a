// Package account models the sync identity: who is logged in, on which
// device, and which data types this device has opted into.
package account

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// refreshWindow is how close to expiry (inclusive) a token is considered due
// for refresh.
const refreshWindow = 5 * time.Minute

// Credentials is the authenticated session bound to a sync account.
type Credentials struct {
	Email        string     `json:"email"`
	AuthToken    string     `json:"auth_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether ExpiresAt is set and in the past.
func (c Credentials) IsExpired() bool {
	exp, ok := c.expiry()
	return ok && time.Now().After(exp)
}

// NeedsRefresh reports whether the token is already expired or expires
// within the refresh window (inclusive).
func (c Credentials) NeedsRefresh() bool {
	exp, ok := c.expiry()
	if !ok {
		return false
	}
	return !exp.After(time.Now().Add(refreshWindow))
}

// expiry returns the effective expiry: ExpiresAt when set, otherwise the
// exp claim extracted from the auth token when it happens to be a JWT.
func (c Credentials) expiry() (time.Time, bool) {
	if c.ExpiresAt != nil {
		return *c.ExpiresAt, true
	}
	return TokenExpiry(c.AuthToken)
}

// TokenExpiry extracts the exp claim from a JWT without verifying its
// signature. Verification is the server's job; the client only needs the
// expiry to plan refreshes. Returns false for non-JWT tokens.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Account is a sync identity plus the per-device settings that shape each
// cycle: which types are enabled and how often to sync.
type Account struct {
	Email        string
	DeviceID     string
	SyncInterval time.Duration

	credentials  *Credentials
	enabledTypes map[change.DataType]bool
}

// New builds an account for the given identity and device. All data types
// start enabled; the caller opts types out per device settings.
func New(email, deviceID string) *Account {
	enabled := make(map[change.DataType]bool)
	for _, dt := range change.AllDataTypes() {
		enabled[dt] = true
	}
	return &Account{
		Email:        email,
		DeviceID:     deviceID,
		SyncInterval: 5 * time.Minute,
		enabledTypes: enabled,
	}
}

// SetCredentials binds an authenticated session to the account.
func (a *Account) SetCredentials(c Credentials) {
	a.credentials = &c
}

// ClearCredentials drops the session (logout).
func (a *Account) ClearCredentials() {
	a.credentials = nil
}

// Credentials returns the bound session, or nil when logged out.
func (a *Account) Credentials() *Credentials {
	return a.credentials
}

// IsLoggedIn reports whether a non-expired session is bound.
func (a *Account) IsLoggedIn() bool {
	return a.credentials != nil && !a.credentials.IsExpired()
}

// TypeEnabled reports whether this device syncs the given data type.
func (a *Account) TypeEnabled(dt change.DataType) bool {
	return a.enabledTypes[dt]
}

// SetTypeEnabled opts the device in or out of syncing a data type.
func (a *Account) SetTypeEnabled(dt change.DataType, enabled bool) {
	a.enabledTypes[dt] = enabled
}

// EnabledTypes returns the enabled types in ascending priority order.
func (a *Account) EnabledTypes() []change.DataType {
	var out []change.DataType
	for dt, on := range a.enabledTypes {
		if on {
			out = append(out, dt)
		}
	}
	change.SortByPriority(out)
	return out
}
