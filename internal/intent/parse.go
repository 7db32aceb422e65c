// Package intent turns external links into open-resource intents and holds
// at most one until the session is connected.
package intent

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const openLinkParam = "openLink="

// ErrNoIntent means the link carried no usable target. Callers drop it.
var ErrNoIntent = errors.New("intent: no openLink target")

// Parse extracts the openLink target from raw. The link must use marker as
// its scheme ("linkbridge://?...") or its host ("https://linkbridge/?...").
// Everything after "openLink=" to the end of raw is the value, so
// ampersands inside the embedded URL survive; the value is percent-decoded
// once.
func Parse(raw, marker string) (string, error) {
	name := strings.TrimSuffix(marker, "://")
	if name == "" {
		return "", fmt.Errorf("%w: empty marker", ErrNoIntent)
	}
	head, query, hasQuery := strings.Cut(raw, "?")
	u, err := url.Parse(head)
	if err != nil || !matchesMarker(u, name) {
		return "", fmt.Errorf("%w: marker %q absent", ErrNoIntent, marker)
	}
	if !hasQuery {
		return "", fmt.Errorf("%w: no query", ErrNoIntent)
	}
	j := strings.Index(query, openLinkParam)
	if j < 0 {
		return "", fmt.Errorf("%w: openLink missing", ErrNoIntent)
	}
	decoded, err := url.PathUnescape(query[j+len(openLinkParam):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIntent, err)
	}
	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%w: empty target", ErrNoIntent)
	}
	return decoded, nil
}

// matchesMarker accepts name as the scheme of a host-less link or as the
// host of a link with a scheme. Nothing but an optional "/" may follow.
func matchesMarker(u *url.URL, name string) bool {
	if u.Opaque != "" || u.Fragment != "" || u.User != nil || (u.Path != "" && u.Path != "/") {
		return false
	}
	if strings.EqualFold(u.Scheme, name) {
		return u.Host == ""
	}
	return u.Scheme != "" && strings.EqualFold(u.Hostname(), name)
}
