package fetch

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	// RFC 5987 extended form: filename*=UTF-8''percent-encoded.name.epub
	extendedFilenamePattern = regexp.MustCompile(`filename\*=(?:[Uu][Tt][Ff]-8'')?([^;]+)`)
	// Bare form: filename="name.epub" or filename=name.epub
	bareFilenamePattern = regexp.MustCompile(`filename=["']?([^;"']+)["']?`)
)

// FilenameFromDisposition extracts a filename from a Content-Disposition
// header value, preferring the RFC 5987 extended form over the bare form.
// Returns "" when neither is present. The result never carries a directory
// component; these names come from the remote server and are later joined
// into local paths.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if m := extendedFilenamePattern.FindStringSubmatch(header); m != nil {
		name := strings.TrimSpace(m[1])
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		return SanitizeFilename(strings.Trim(name, `"'`))
	}
	if m := bareFilenamePattern.FindStringSubmatch(header); m != nil {
		return SanitizeFilename(strings.TrimSpace(m[1]))
	}
	return ""
}

// FilenameFromURL derives a filename from the path of a (possibly redirected)
// download URL. Returns fallback when the path has no usable base segment.
func FilenameFromURL(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	base := path.Base(u.Path)
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	base = SanitizeFilename(base)
	if base == "" {
		return fallback
	}
	return base
}

// SanitizeFilename strips any directory component from a remote-supplied
// name. A decoded header like "..%2F..%2Fpwn.epub" must not escape the
// directory it is joined into.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	return name
}
