// Package identifier generates collision-resistant opaque identifiers for
// documents that this module creates client-side (run records, and any
// client-assigned document created before the store has a chance to
// auto-assign one). It is distinct from the content-free file identity
// scheme in internal/identity, which is a pure function of host and path
// rather than random.
package identifier

import (
	"errors"
	"regexp"
	"strings"

	"github.com/dirscansync/dirscansync/pkg/encoding"
	"github.com/dirscansync/dirscansync/pkg/random"
)

const (
	// PrefixRun is the prefix used for scan run identifiers.
	PrefixRun = "scan"
	// PrefixHost is the prefix used for host identifiers minted client-side
	// (e.g. by the initial-setup flow, which is out of scope for this
	// module but shares the identifier format).
	PrefixHost = "host"
	// PrefixRelationship is the prefix used for relationship identifiers.
	PrefixRelationship = "rlat"

	// requiredPrefixLength is the required length for identifier prefixes.
	requiredPrefixLength = 4
	// collisionResistantLength is the number of random bytes needed to ensure
	// collision-resistance in an identifier.
	collisionResistantLength = 32
	// targetBase62Length is the target length for the Base62-encoded portion
	// of the identifier: the maximum length a collisionResistantLength byte
	// array takes to encode in Base62, ceil(n*8*ln(2)/ln(62)).
	targetBase62Length = 43
)

// matcher is a regular expression that matches identifiers minted by New.
var matcher = regexp.MustCompile("^[a-z]{4}_[0-9a-zA-Z]{43}$")

// New generates a new collision-resistant identifier with the specified
// prefix. The prefix must have length requiredPrefixLength and consist only
// of lowercase ASCII letters.
func New(prefix string) (string, error) {
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	}
	for _, r := range prefix {
		if !('a' <= r && r <= 'z') {
			return "", errors.New("invalid prefix character")
		}
	}

	randomBytes, err := random.New(collisionResistantLength)
	if err != nil {
		return "", err
	}

	encoded := encoding.EncodeBase62(randomBytes)
	if len(encoded) > targetBase62Length {
		panic("encoded random data length longer than expected")
	}

	builder := &strings.Builder{}
	builder.WriteString(prefix)
	builder.WriteRune('_')
	for i := targetBase62Length - len(encoded); i > 0; i-- {
		builder.WriteByte(encoding.Base62Alphabet[0])
	}
	builder.WriteString(encoded)

	return builder.String(), nil
}

// IsValid determines whether or not a string is a valid identifier minted by
// New.
func IsValid(value string) bool {
	return matcher.MatchString(value)
}
