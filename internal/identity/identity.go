// Package identity implements the stable, content-free file identity scheme
// that is the data contract between the two hosts of a relationship: a
// path's identity depends only on which host scanned it and where it sits
// relative to that host's configured root, never on file content.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

// errorSuffix is appended to a file's IDprefix, in place of a decimal mtime
// suffix, when the path could not be encoded as UTF-8 and therefore never
// joins with its peer (§4.6 edge cases).
const errorSuffix = "-ERROR"

// Prefix computes sha1(host ‖ utf8(relativePath)) as 40 lowercase hex
// characters: the host-scoped, content-free identity of a path. Two files on
// the same host at the same relative path collide in Prefix across all time,
// by design (invariant 2).
func Prefix(host, relativePath string) string {
	hasher := sha1.New()
	hasher.Write([]byte(host))
	hasher.Write([]byte(relativePath))
	return hex.EncodeToString(hasher.Sum(nil))
}

// FileID computes the document _id for a scanned file: its host-scoped
// Prefix followed by the decimal integer seconds of mtime, or the literal
// "-ERROR" suffix if relativePath cannot round-trip through UTF-8.
//
// If mtime could not be determined (mtimeValid is false), the id is the bare
// prefix with no suffix, per §4.6, which deduplicates repeated unreadable
// entries. A zero mtime with mtimeValid true is not that case: its id is the
// prefix followed by "0".
func FileID(host, relativePath string, mtimeSeconds int64, mtimeValid bool) string {
	prefix := Prefix(host, relativePath)
	if !utf8.ValidString(relativePath) {
		return prefix + errorSuffix
	}
	if !mtimeValid {
		return prefix
	}
	return prefix + strconv.FormatInt(mtimeSeconds, 10)
}

// IsPathEncodable reports whether relativePath can serve as the basis for a
// well-formed identity (i.e. is valid UTF-8). Callers use this to decide
// whether to mark a record's status as an encoding error per §4.6.
func IsPathEncodable(relativePath string) bool {
	return utf8.ValidString(relativePath)
}
