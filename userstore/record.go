package userstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("user record not found")
	// ErrDuplicateEmail is returned when another record already owns the email.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrDuplicateID is returned when a record with the same id exists.
	ErrDuplicateID = errors.New("user id already in use")
	// ErrDuplicateIdentity is returned when a provider identity is linked twice.
	ErrDuplicateIdentity = errors.New("third-party identity already linked")
	// ErrUnsupportedField is returned by GetOneByField for unknown fields.
	ErrUnsupportedField = errors.New("unsupported lookup field")
	// ErrInvalidRecord is returned when a record has no id.
	ErrInvalidRecord = errors.New("user record requires an id")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("user store unavailable")
)

// Field names a lookup column for GetOneByField.
type Field string

const (
	// FieldEmail matches Record.Email.
	FieldEmail Field = "email"
	// FieldOpenID matches IdentityKey(provider, subject) of Record.OpenID.
	FieldOpenID Field = "openID"
)

// ThirdPartyIdentity is the external identity linked to an account.
type ThirdPartyIdentity struct {
	Provider      string
	Email         string
	EmailVerified bool
	Subject       string
}

// Record is the durable user record.
type Record struct {
	ID             string
	FirstName      string
	LastName       string
	Email          string
	EmailVerified  bool
	Picture        string
	HashedPassword string
	Salt           string
	OpenID         *ThirdPartyIdentity
	Organizations  []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasLocalCredential reports whether the account can sign in with a password.
func (r *Record) HasLocalCredential() bool {
	return r != nil && r.HashedPassword != "" && r.Salt != ""
}

// HasAuthMethod reports whether the account has any way to authenticate.
func (r *Record) HasAuthMethod() bool {
	return r.HasLocalCredential() || (r != nil && r.OpenID != nil && r.OpenID.Subject != "")
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.OpenID != nil {
		id := *r.OpenID
		out.OpenID = &id
	}
	if r.Organizations != nil {
		out.Organizations = append([]string(nil), r.Organizations...)
	}
	return &out
}

// IdentityKey is the lookup value for FieldOpenID.
func IdentityKey(provider, subject string) string {
	return provider + ":" + subject
}

// Update is a partial write. Nil fields are left untouched.
type Update struct {
	FirstName      *string
	LastName       *string
	Email          *string
	EmailVerified  *bool
	Picture        *string
	HashedPassword *string
	Salt           *string
	OpenID         *ThirdPartyIdentity
	Organizations  []string
}

// IsEmpty reports whether the update carries no change.
func (u Update) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.EmailVerified == nil && u.Picture == nil && u.HashedPassword == nil &&
		u.Salt == nil && u.OpenID == nil && u.Organizations == nil
}

// Apply copies the set fields of u onto r.
func (u Update) Apply(r *Record) {
	if u.FirstName != nil {
		r.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		r.LastName = *u.LastName
	}
	if u.Email != nil {
		r.Email = *u.Email
	}
	if u.EmailVerified != nil {
		r.EmailVerified = *u.EmailVerified
	}
	if u.Picture != nil {
		r.Picture = *u.Picture
	}
	if u.HashedPassword != nil {
		r.HashedPassword = *u.HashedPassword
	}
	if u.Salt != nil {
		r.Salt = *u.Salt
	}
	if u.OpenID != nil {
		id := *u.OpenID
		r.OpenID = &id
	}
	if u.Organizations != nil {
		r.Organizations = append([]string(nil), u.Organizations...)
	}
}

// Store is the durable record store. Implementations must be safe for
// concurrent use and must reject a second record with the same email.
type Store interface {
	Create(ctx context.Context, record *Record) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	GetOneByField(ctx context.Context, field Field, value string) (*Record, error)
	UpdateByID(ctx context.Context, id string, update Update) (*Record, error)
	DeleteByID(ctx context.Context, id string) error
}
