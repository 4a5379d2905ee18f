// Package site knows the host application's URLs and how usernames appear in them.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// WorkerParam marks a page load as the background worker instance
const WorkerParam = "rb_bg"

// DefaultBaseURL is where worker tabs are opened
const DefaultBaseURL = "https://www.threads.net/"

// AllowedHosts is the set of hostnames the tool activates on
var AllowedHosts = []string{
	"www.threads.net",
	"threads.net",
	"www.threads.com",
	"threads.com",
}

// ErrHostNotAllowed is returned for URLs outside AllowedHosts
var ErrHostNotAllowed = errors.New("host not allowed")

// importSeparators splits pasted lists on whitespace, ASCII and full-width commas
var importSeparators = regexp.MustCompile(`[\s,，]+`)

// CheckHost returns ErrHostNotAllowed unless rawURL points at an allowed host
func CheckHost(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range AllowedHosts {
		if host == h {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
}

// IsWorkerURL reports whether the page was loaded as the background worker
func IsWorkerURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get(WorkerParam) == "true"
}

// WorkerURL returns the worker entry point on base
func WorkerURL(base string) string {
	return withWorkerParam(base, "/")
}

// ProfileURL returns the profile page of user with the worker marker kept
func ProfileURL(base, user string) string {
	return withWorkerParam(base, "/@"+user)
}

func withWorkerParam(base, path string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		u, _ = url.Parse(DefaultBaseURL)
	}
	u.Path = path
	u.RawQuery = url.Values{WorkerParam: []string{"true"}}.Encode()
	u.Fragment = ""
	return u.String()
}

// OnProfile reports whether the first path segment of rawURL is "@"+user.
// Usernames compare case-insensitively; a prefix of another name never matches.
func OnProfile(rawURL, user string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || user == "" {
		return false
	}
	seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !strings.HasPrefix(seg, "@") {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(seg, "@"), user)
}

// UsernameFromHref extracts the username from a profile link such as
// "/@alice/post/123" or "https://www.threads.net/@alice?x=1".
// It returns "" when the href has no profile marker.
func UsernameFromHref(href string) string {
	_, rest, ok := strings.Cut(href, "/@")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// NormalizeUsername strips a leading "@" and any URL path or query noise
func NormalizeUsername(raw string) string {
	u := strings.TrimSpace(raw)
	u, _, _ = strings.Cut(u, "?")
	if strings.Contains(u, "/@") {
		return UsernameFromHref(u)
	}
	u = strings.TrimPrefix(u, "@")
	u, _, _ = strings.Cut(u, "/")
	return strings.TrimSpace(u)
}

// ParseImportList turns pasted text into usernames, first occurrence wins
func ParseImportList(raw string) []string {
	seen := make(map[string]bool)
	var users []string
	for _, token := range importSeparators.Split(raw, -1) {
		u := NormalizeUsername(token)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		users = append(users, u)
	}
	return users
}
