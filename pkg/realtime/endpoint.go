package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Path is the bridge endpoint on the REST backend's host.
const Path = "/ws/realtime"

// BridgeURL derives the duplex endpoint from the REST backend base URL by
// swapping the scheme (http→ws, https→wss) and replacing the path. Bases that
// already use ws or wss keep their scheme.
func BridgeURL(apiBase string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil {
		return "", fmt.Errorf("realtime: parse api base: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime: unsupported scheme %q in %q", u.Scheme, apiBase)
	}
	if u.Host == "" {
		return "", fmt.Errorf("realtime: api base %q has no host", apiBase)
	}
	u.Path = Path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
