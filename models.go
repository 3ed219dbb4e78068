package gatekeeper

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegistrationMethodMagicLink is the only self-service registration path.
const RegistrationMethodMagicLink = "magic_link"

// WhitelistEntry is a pre-approval record gating self-service registration.
// The entry ID is derived deterministically from the normalized email so a
// re-add targets the same row.
type WhitelistEntry struct {
	bun.BaseModel  `bun:"table:whitelist_entries,alias:wle"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	ExpirationDate *time.Time `bun:"expiration_date,nullzero" json:"expiration_date,omitempty"`
	ApprovedBy     string     `bun:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	RegisteredAt   *time.Time `bun:"registered_at,nullzero" json:"registered_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasRegistered reports whether the invited user completed a first sign in.
func (e *WhitelistEntry) HasRegistered() bool {
	return e != nil && e.RegisteredAt != nil
}

// ExpiredAt reports whether the entry's expiration date has passed. Before
// registration the date is a sign-up deadline, after registration it becomes
// the account expiration date.
func (e *WhitelistEntry) ExpiredAt(now time.Time) bool {
	if e == nil || e.ExpirationDate == nil {
		return false
	}
	return e.ExpirationDate.Before(now)
}

// User is the directory profile created at first successful magic link
// redemption. Users are never physically deleted, deactivation is a soft
// delete preserving audit linkage.
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role               UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	RegistrationMethod string     `bun:"registration_method" json:"registration_method,omitempty"`
	IsDeactivated      bool       `bun:"is_deactivated" json:"is_deactivated"`
	DeactivatedAt      *time.Time `bun:"deactivated_at,nullzero" json:"deactivated_at,omitempty"`
	ExpirationDate     *time.Time `bun:"expiration_date,nullzero" json:"expiration_date,omitempty"`
	LastActiveAt       *time.Time `bun:"last_active_at,nullzero" json:"last_active_at,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ExpiredAt reports whether the user's own expiration date has passed.
func (u *User) ExpiredAt(now time.Time) bool {
	if u == nil || u.ExpirationDate == nil {
		return false
	}
	return u.ExpirationDate.Before(now)
}

// TokenTypeSession is the token type backing interactive logins.
const TokenTypeSession = "session"

// SessionToken is a server-issued, revocable record backing an active login.
// Revocation hard-deletes the row.
type SessionToken struct {
	bun.BaseModel `bun:"table:session_tokens,alias:st"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenType     string     `bun:"token_type,notnull" json:"token_type,omitempty"`
	IssuedAt      *time.Time `bun:"issued_at,nullzero,default:current_timestamp" json:"issued_at,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// MagicLinkStatus tracks the per-link state machine.
type MagicLinkStatus = string

const (
	// LinkRequested is the initial status, before the notifier accepts the link
	LinkRequested MagicLinkStatus = "requested"
	// LinkSent means the link left the building
	LinkSent MagicLinkStatus = "sent"
	// LinkRedeemed is a terminal status, links are single use
	LinkRedeemed MagicLinkStatus = "redeemed"
	// LinkExpired is a terminal status for links past their window
	LinkExpired MagicLinkStatus = "expired"
)

// MagicLink is a single-use, time-boxed sign-in credential. The record ID is
// the token embedded in the link.
type MagicLink struct {
	bun.BaseModel `bun:"table:magic_links,alias:mgl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	DeviceID      string     `bun:"device_id" json:"device_id,omitempty"`
	IPAddress     string     `bun:"ip_address" json:"ip_address,omitempty"`
	RequestedAt   *time.Time `bun:"requested_at,nullzero,default:current_timestamp" json:"requested_at,omitempty"`
	SentAt        *time.Time `bun:"sent_at,nullzero" json:"sent_at,omitempty"`
	RedeemedAt    *time.Time `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
}

// ActivityRecord is an append-only audit entry. Inserts are conflict safe,
// re-inserting an existing ID is a no-op.
type ActivityRecord struct {
	bun.BaseModel `bun:"table:activity_log,alias:act"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        string         `bun:"user_id" json:"user_id,omitempty"`
	Email         string         `bun:"email" json:"email,omitempty"`
	EventType     string         `bun:"event_type,notnull" json:"event_type,omitempty"`
	DeviceID      string         `bun:"device_id" json:"device_id,omitempty"`
	IPAddress     string         `bun:"ip_address" json:"ip_address,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	OccurredAt    *time.Time     `bun:"occurred_at,nullzero,default:current_timestamp" json:"occurred_at,omitempty"`
}
