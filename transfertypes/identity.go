package transfertypes

import (
	"fmt"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// AccessLevel scopes an object key.
type AccessLevel string

// Access levels
const (
	// AccessPublic objects are readable by any identity.
	AccessPublic AccessLevel = "public"
	// AccessProtected objects are readable by any identity and writable by their owner.
	AccessProtected AccessLevel = "protected"
	// AccessPrivate objects are only accessible to their owner.
	AccessPrivate AccessLevel = "private"
)

// Identity addresses an object. The engine carries it opaquely; only
// transports turn it into a storage key.
type Identity struct {
	Key        string
	Level      AccessLevel
	IdentityID string
}

// NewIdentity returns a public identity for key.
func NewIdentity(key string) Identity {
	return Identity{Key: key, Level: AccessPublic}
}

// WithLevel returns a copy of the identity scoped to level and owner.
func (id Identity) WithLevel(level AccessLevel, identityID string) Identity {
	id.Level = level
	id.IdentityID = identityID
	return id
}

// Validate checks that the access level is known and carries an owner when required.
func (id Identity) Validate() error {
	switch id.level() {
	case AccessPublic:
		return nil
	case AccessProtected, AccessPrivate:
		if id.IdentityID == "" {
			return fmt.Errorf("%w: %s", errors.ErrMissingIdentityID, id.Level)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown access level %q", errors.ErrInvalidInput, id.Level)
	}
}

// ResolveKey returns the storage key: public/<key>, protected/<id>/<key> or
// private/<id>/<key>.
func (id Identity) ResolveKey() string {
	return id.Prefix() + id.Key
}

// Prefix returns the storage prefix of the access level, including the
// trailing slash.
func (id Identity) Prefix() string {
	switch lvl := id.level(); lvl {
	case AccessProtected, AccessPrivate:
		return string(lvl) + "/" + id.IdentityID + "/"
	default:
		return string(AccessPublic) + "/"
	}
}

// WithKey returns a copy of the identity addressing key at the same level.
func (id Identity) WithKey(key string) Identity {
	id.Key = key
	return id
}

// Relative turns a storage key under the identity's level back into an
// identity at that level. It reports false when key lies outside it.
func (id Identity) Relative(key string) (Identity, bool) {
	rest, ok := strings.CutPrefix(key, id.Prefix())
	if !ok {
		return Identity{}, false
	}
	return id.WithKey(rest), true
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return id.ResolveKey()
}

func (id Identity) level() AccessLevel {
	if id.Level == "" {
		return AccessPublic
	}
	return id.Level
}
