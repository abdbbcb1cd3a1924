package wire

import (
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultHTTPPort is the port of the transactional HTTP API.
	DefaultHTTPPort = 7474
	// BoltPort is rewritten to DefaultHTTPPort by ParseURI.
	BoltPort = 7687
)

var schemes = []string{"bolt://", "neo4j://", "http://"}

// ParseURI extracts host and HTTP port from a connection URI. bolt://,
// neo4j:// and http:// prefixes are accepted; the Bolt port is mapped to
// the HTTP port so that one NEO4J_URI serves both protocols.
func ParseURI(uri string) (host string, port int, err error) {
	rest := strings.TrimSpace(uri)
	for _, s := range schemes {
		if strings.HasPrefix(strings.ToLower(rest), s) {
			rest = rest[len(s):]
			break
		}
	}
	if strings.Contains(rest, "://") {
		return "", 0, fmt.Errorf("unsupported scheme in %q", uri)
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "localhost", DefaultHTTPPort, nil
	}

	h, p, splitErr := net.SplitHostPort(rest)
	if splitErr != nil {
		// no port
		return strings.Trim(rest, "[]"), DefaultHTTPPort, nil
	}
	if h == "" {
		h = "localhost"
	}
	port, err = strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", uri)
	}
	if port == BoltPort {
		port = DefaultHTTPPort
	}
	return h, port, nil
}

// BasicAuth returns the value of an Authorization header for user and
// password.
func BasicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
