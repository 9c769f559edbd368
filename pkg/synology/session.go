package synology

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/dsbridge/dsbridge/pkg/cgiresp"
	"github.com/dsbridge/dsbridge/pkg/invoke"
)

// excludedRelayHeaders are owned by the web framework serving the request
// and are never copied from a DSM response. Keys are lower case.
var excludedRelayHeaders = map[string]bool{
	"location":     true,
	"content-type": true,
}

var sessionCookiePattern = regexp.MustCompile(`\bid=[^;]+`)

// Session ties bridge calls to one incoming HTTP request. It holds the
// request meta-variables passed to the DSM scripts and the header set of
// the outgoing response that DSM headers are relayed to.
//
// A Session is not safe for concurrent use.
type Session struct {
	req *invoke.Request
	out http.Header
}

// NewSession creates a session for req. Relayed headers are written to out,
// which may be nil when nothing should be relayed.
func NewSession(req *invoke.Request, out http.Header) *Session {
	if req == nil {
		req = invoke.NewRequest(nil)
	}
	return &Session{req: req, out: out}
}

// HTTPSession creates a session for an HTTP handler.
func HTTPSession(w http.ResponseWriter, r *http.Request) *Session {
	return NewSession(invoke.RequestFromHTTP(r), w.Header())
}

// CGISession creates a session for a program run as a CGI script: the
// request comes from the process environment.
func CGISession(out http.Header) *Session {
	return NewSession(invoke.CurrentRequest(), out)
}

// Request returns the current request meta-variables.
func (s *Session) Request() *invoke.Request {
	return s.req
}

// relay copies the response headers to the outgoing header set, leaving
// out the framework-controlled ones.
func (s *Session) relay(resp *cgiresp.Response) {
	if s.out == nil {
		return
	}
	for _, name := range resp.Names() {
		if excludedRelayHeaders[strings.ToLower(name)] {
			continue
		}
		s.out.Set(name, resp.Header[name])
	}
}

// stitchCookie appends the DSM session id from a Set-Cookie header to the
// session's cookie so later calls in this run see the new login.
func (s *Session) stitchCookie(resp *cgiresp.Response) bool {
	setCookie, ok := resp.Lookup("Set-Cookie")
	if !ok {
		return false
	}
	fragment := sessionCookiePattern.FindString(setCookie)
	if fragment == "" {
		return false
	}
	s.req = s.req.WithCookie(fragment)
	return true
}
