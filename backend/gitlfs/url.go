package gitlfs

import (
	"net/url"
	"strings"
)

// repoDirName maps a repository URL to a single filesystem-safe directory
// name, so changing the configured repo never reuses a stale clone.
//
// Examples:
//   - https://github.com/org/cache.git → github.com_org_cache
//   - git@github.com:org/cache → github.com_org_cache
//   - /srv/git/cache.git → srv_git_cache
func repoDirName(rawURL string) string {
	return strings.ReplaceAll(normalizeURL(rawURL), "/", "_")
}

// normalizeURL reduces SSH, HTTP(S) and path URLs to host/path form without
// a .git suffix or surrounding slashes.
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSuffix(strings.TrimSuffix(rawURL, "/"), ".git")

	// scp-like SSH syntax: user@host:path
	if strings.Contains(rawURL, "@") && strings.Contains(rawURL, ":") && !strings.Contains(rawURL, "://") {
		if _, hostPath, ok := strings.Cut(rawURL, "@"); ok {
			return strings.Trim(strings.Replace(hostPath, ":", "/", 1), "/")
		}
	}

	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return strings.Trim(parsed.Hostname()+parsed.Path, "/")
	}

	return strings.Trim(strings.TrimPrefix(rawURL, "file://"), "/")
}
