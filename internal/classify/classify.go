// Package classify maps opaque download arguments to the backend that owns
// them. The match order matters: a URL can coincidentally satisfy an ID
// shape, so URL rules run before ID rules, and the two-argument Z-Library
// pair outranks everything.
package classify

import (
	"errors"
	"regexp"
	"strings"
)

// Backend identifies the adapter whose download routine should run.
type Backend int

const (
	Unknown Backend = iota
	Zlib
	Calibre
	Archive
	Liber3
	Annas
)

// String returns the backend's display name.
func (b Backend) String() string {
	switch b {
	case Zlib:
		return "Z-Library"
	case Calibre:
		return "Calibre-Web"
	case Archive:
		return "archive.org"
	case Liber3:
		return "Liber3"
	case Annas:
		return "Anna's Archive"
	default:
		return "unknown"
	}
}

// Tagged-ID prefixes. One letter per backend, 32 hex chars after. New
// backends must not reuse a letter; registerPrefix panics on collision.
const (
	Liber3Prefix = 'L'
	AnnasPrefix  = 'A'
)

var prefixOwners = map[byte]Backend{}

func registerPrefix(prefix byte, owner Backend) {
	if existing, taken := prefixOwners[prefix]; taken {
		panic("classify: prefix " + string(prefix) + " already owned by " + existing.String())
	}
	prefixOwners[prefix] = owner
}

func init() {
	registerPrefix(Liber3Prefix, Liber3)
	registerPrefix(AnnasPrefix, Annas)
}

var (
	httpURLPattern    = regexp.MustCompile(`^https?://.+/.+$`)
	archiveURLPattern = regexp.MustCompile(`^https://archive\.org/download/[^/]+/[^/]+$`)
	taggedIDPattern   = regexp.MustCompile(`^[A-Za-z][a-fA-F0-9]{32}$`)
	zlibIDPattern     = regexp.MustCompile(`^[0-9]+$`)
	zlibHashPattern   = regexp.MustCompile(`^[a-fA-F0-9]{6}$`)
)

const calibreDownloadMarker = "/opds/download/"

// ErrUnrecognized is wrapped by the classifier's rejection message.
var ErrUnrecognized = errors.New("identifier format not recognized")

// AcceptedShapes describes the identifier shapes the classifier accepts,
// for the rejection message.
const AcceptedShapes = "accepted: <id> <hash> (Z-Library), an /opds/download/ URL (Calibre-Web), " +
	"https://archive.org/download/<item>/<file> (archive.org), " +
	"L<32 hex> (Liber3), A<32 hex> (Anna's Archive)"

// IsCalibreURL reports whether s is an http(s) URL carrying the Calibre
// acquisition path marker.
func IsCalibreURL(s string) bool {
	return httpURLPattern.MatchString(s) && strings.Contains(s, calibreDownloadMarker)
}

// IsArchiveURL reports whether s matches the strict archive.org download
// path shape.
func IsArchiveURL(s string) bool {
	return archiveURLPattern.MatchString(s)
}

// IsZlibPair validates a Z-Library (numeric id, 6-hex hash) pair.
func IsZlibPair(id, hash string) bool {
	return zlibIDPattern.MatchString(id) && zlibHashPattern.MatchString(hash)
}

// TaggedID reports the backend owning a one-letter-prefix hex identifier and
// the bare ID with the prefix stripped. Returns Unknown for unregistered
// prefixes and non-matching strings.
func TaggedID(s string) (Backend, string) {
	if !taggedIDPattern.MatchString(s) {
		return Unknown, ""
	}
	owner, ok := prefixOwners[s[0]]
	if !ok {
		return Unknown, ""
	}
	return owner, s[1:]
}

// Classify decides which backend's download routine applies to one or two
// raw argument strings. First match wins:
//  1. two non-empty arguments: Z-Library (id, hash) pair
//  2. URL with the Calibre acquisition marker
//  3. strict archive.org download URL
//  4. registered one-letter prefix + 32 hex: owning tagged backend
//  5. anything else: ErrUnrecognized, never a guess
func Classify(primary, secondary string) (Backend, error) {
	primary = strings.TrimSpace(primary)
	secondary = strings.TrimSpace(secondary)

	if primary != "" && secondary != "" {
		return Zlib, nil
	}
	if IsCalibreURL(primary) {
		return Calibre, nil
	}
	if IsArchiveURL(primary) {
		return Archive, nil
	}
	if owner, _ := TaggedID(primary); owner != Unknown {
		return owner, nil
	}
	return Unknown, ErrUnrecognized
}
