package phishguard

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/aliasimcoskun/phishguard/models"
)

// ipv4Pattern matches four dot-separated 1-to-3-digit groups anywhere in the
// host. Deliberately loose: no octet range check and no anchoring, so a host
// like "192.168.0.1-test" still counts as an IP literal. The model was trained
// against this behavior, so tightening it would shift predictions.
var ipv4Pattern = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// shortenerHosts are substrings that flag well-known URL shortening services.
var shortenerHosts = []string{"tinyurl", "bit.ly"}

// ExtractFeatures derives the fixed-length numeric vector for a URL string.
// It is a total function: any string is accepted, and a URL that cannot be
// parsed yields the zero vector rather than an error.
func ExtractFeatures(rawURL string) models.FeatureVector {
	var vec models.FeatureVector

	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return vec
	}

	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)
	scheme := strings.ToLower(u.Scheme)

	vec[models.FeatureHostLength] = float64(len(host))

	if ipv4Pattern.MatchString(host) {
		vec[models.FeatureHostIsIPv4] = 1.0
	}

	// The @ check runs over the whole original string, not just the host,
	// to catch userinfo tricks like http://safe.com@evil.com.
	if strings.Contains(rawURL, "@") {
		vec[models.FeatureHasAtSign] = 1.0
	}

	vec[models.FeatureURLLength] = float64(len(rawURL))

	vec[models.FeaturePathDepth] = float64(pathDepth(path))

	if strings.Contains(path, "//") {
		vec[models.FeatureDoubleSlashInPath] = 1.0
	}

	if scheme == "https" {
		vec[models.FeatureSchemeHTTPS] = 1.0
	}

	for _, s := range shortenerHosts {
		if strings.Contains(host, s) {
			vec[models.FeatureShortenerHost] = 1.0
			break
		}
	}

	if strings.Contains(host, "-") {
		vec[models.FeatureHyphenInHost] = 1.0
	}

	return vec
}

// pathDepth counts the non-empty segments of a URL path.
func pathDepth(path string) int {
	depth := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}
