package observability

import "github.com/urishop/api/internal/platform/textutil"

const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxAddrLen   = 64
)

// SanitizeRoute strips control characters from a path or route pattern before it reaches logs and spans.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return textutil.Truncate(textutil.StripControl(route), maxRouteLen)
}

// SanitizeMethod strips control characters from an HTTP method.
func SanitizeMethod(method string) string {
	return textutil.Truncate(textutil.StripControl(method), maxMethodLen)
}
