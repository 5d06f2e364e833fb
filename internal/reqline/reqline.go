// Package reqline parses an HTTP request line and classifies its
// request-target into the forms spec.md §3-4.1 names: absolute-form
// (absoluteURI), origin-form (abs_path), asterisk-form, and the
// authority form CONNECT targets arrive in.
package reqline

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformed is returned for any request line that does not split
// into exactly method/target/version, or whose version is not an
// HTTP/1.x this engine understands.
var ErrMalformed = errors.New("malformed request line")

// Form classifies the request-target.
type Form int

const (
	// FormAbsPath is origin-form: "/path?query".
	FormAbsPath Form = iota
	// FormAbsoluteURI is absolute-form: "http://host:port/path".
	FormAbsoluteURI
	// FormAsterisk is asterisk-form: "*", valid only for OPTIONS.
	FormAsterisk
	// FormAuthority is the authority form CONNECT targets use:
	// "host:port", no scheme, no path.
	FormAuthority
)

// Line is the parsed and classified request line.
type Line struct {
	Method string
	Form   Form

	Scheme string // set only for FormAbsoluteURI
	Host   string // set for FormAbsoluteURI and FormAuthority
	Port   int    // set for FormAbsoluteURI and FormAuthority; 0 means "absent"
	Path   string // set for FormAbsPath and FormAbsoluteURI; "*" for FormAsterisk

	VersionMajor int
	VersionMinor int
}

// Parse parses one request line out of line, which must NOT include
// the trailing CRLF (the caller's tokenizer already split on it).
func Parse(line []byte) (*Line, error) {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 space-separated parts", ErrMalformed)
	}
	method := string(parts[0])
	target := string(parts[1])
	version := string(parts[2])
	if method == "" || target == "" {
		return nil, fmt.Errorf("%w: empty method or target", ErrMalformed)
	}

	major, minor, err := parseVersion(version)
	if err != nil {
		return nil, err
	}

	l := &Line{Method: method, VersionMajor: major, VersionMinor: minor}
	if err := classifyTarget(l, target); err != nil {
		return nil, err
	}
	return l, nil
}

func parseVersion(v string) (major, minor int, err error) {
	parts := strings.SplitN(v, "/", 2)
	if len(parts) != 2 || parts[0] != "HTTP" {
		return 0, 0, fmt.Errorf("%w: bad version token %q", ErrMalformed, v)
	}
	dotted := strings.SplitN(parts[1], ".", 2)
	if len(dotted) != 2 {
		return 0, 0, fmt.Errorf("%w: bad version number %q", ErrMalformed, v)
	}
	major, err = strconv.Atoi(dotted[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad version number %q", ErrMalformed, v)
	}
	minor, err = strconv.Atoi(dotted[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad version number %q", ErrMalformed, v)
	}
	if major != 1 || (minor != 0 && minor != 1) {
		return 0, 0, fmt.Errorf("%w: unsupported version HTTP/%d.%d", ErrMalformed, major, minor)
	}
	return major, minor, nil
}

func classifyTarget(l *Line, target string) error {
	switch {
	case target == "*":
		l.Form = FormAsterisk
		l.Path = "*"
		return nil
	case strings.HasPrefix(target, "/"):
		l.Form = FormAbsPath
		l.Path = target
		return nil
	case strings.Contains(target, "://"):
		u, err := url.Parse(target)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: bad absolute-URI %q", ErrMalformed, target)
		}
		host, port, err := splitHostPort(u.Host, 80)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		l.Form = FormAbsoluteURI
		l.Scheme = strings.ToLower(u.Scheme)
		l.Host = host
		l.Port = port
		l.Path = u.RequestURI()
		return nil
	default:
		// Authority form: "host:port", no scheme, no leading slash.
		// Produced by CONNECT targets; final disposition is deferred
		// to end-of-headers per spec.md §4.1.
		host, port, err := splitHostPort(target, 0)
		if err != nil {
			return fmt.Errorf("%w: bad authority-form target %q", ErrMalformed, target)
		}
		l.Form = FormAuthority
		l.Host = host
		l.Port = port
		return nil
	}
}

// splitHostPort splits "host[:port]", defaulting the port to
// defaultPort when absent (0 means "leave Port unset as 0").
func splitHostPort(hostport string, defaultPort int) (host string, port int, err error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, defaultPort, nil
	}
	host = hostport[:idx]
	portStr := hostport[idx+1:]
	if portStr == "" {
		return host, defaultPort, nil
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, p, nil
}
