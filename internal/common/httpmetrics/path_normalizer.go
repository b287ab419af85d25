package httpmetrics

import "strings"

const otherRoute = "{other}"

var knownRoutes = map[string]struct{}{
	"/health":                {},
	"/metrics":               {},
	"/ws/push":               {},
	"/api/push/vapid-key":    {},
	"/api/push/subscription": {},
	"/api/push/test":         {},
	"/internal/push/notify":  {},
}

var routePrefixes = []string{"/api/push/", "/internal/push/"}

// NormalizePath maps a request path onto a bounded label set: known routes
// keep their path, anything else collapses to its prefix.
func NormalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := knownRoutes[path]; ok {
		return path
	}

	for _, prefix := range routePrefixes {
		if strings.HasPrefix(path+"/", prefix) {
			return prefix + otherRoute
		}
	}
	return "/" + otherRoute
}
