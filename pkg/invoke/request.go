package invoke

import (
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
)

const (
	// HeaderPrefix is the prefix of CGI meta-variables carrying request headers.
	HeaderPrefix = "HTTP_"

	// RemoteAddrVar names the client address meta-variable.
	RemoteAddrVar = "REMOTE_ADDR"

	// CookieVar names the meta-variable carrying the request cookies.
	CookieVar = "HTTP_COOKIE"

	// QueryStringVar names the meta-variable carrying the query payload.
	QueryStringVar = "QUERY_STRING"
)

// Request is an immutable view of the CGI meta-variables describing the
// HTTP request that triggered an invocation. Only HTTP_* variables and
// REMOTE_ADDR are kept; they are the ones the DSM scripts read to find the
// browser session.
//
// Methods that change the request return a new value.
type Request struct {
	vars map[string]string
}

// NewRequest builds a Request from a map of meta-variables.
// Variables that are not request variables are ignored.
func NewRequest(vars map[string]string) *Request {
	r := &Request{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		if isRequestVar(k) {
			r.vars[k] = v
		}
	}
	return r
}

// RequestFromHTTP converts an incoming HTTP request into meta-variables the
// same way a CGI host does.
func RequestFromHTTP(req *http.Request) *Request {
	r := &Request{vars: make(map[string]string)}
	for k, v := range req.Header {
		k = strings.Map(upperCaseAndUnderscore, k)
		if k == "PROXY" {
			// httpoxy
			continue
		}
		joinStr := ", "
		if k == "COOKIE" {
			joinStr = "; "
		}
		r.vars[HeaderPrefix+k] = strings.Join(v, joinStr)
	}
	if req.Host != "" {
		r.vars["HTTP_HOST"] = req.Host
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		r.vars[RemoteAddrVar] = host
	} else if req.RemoteAddr != "" {
		r.vars[RemoteAddrVar] = req.RemoteAddr
	}
	return r
}

// RequestFromEnviron builds a Request from "KEY=value" pairs, as returned
// by os.Environ. This is the request seen by a program that is itself run
// as a CGI script.
func RequestFromEnviron(environ []string) *Request {
	vars := make(map[string]string)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[k] = v
	}
	return NewRequest(vars)
}

// CurrentRequest returns the request described by the process environment.
func CurrentRequest() *Request {
	return RequestFromEnviron(os.Environ())
}

// Get returns the value of a meta-variable.
func (r *Request) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.vars[name]
	return v, ok
}

// Cookie returns the raw cookie header of the request.
func (r *Request) Cookie() string {
	v, _ := r.Get(CookieVar)
	return v
}

// WithCookie returns a copy of r with fragment appended to its cookie
// header, separated by "; " when a cookie is already present.
func (r *Request) WithCookie(fragment string) *Request {
	out := r.clone()
	if existing, ok := out.vars[CookieVar]; ok && existing != "" {
		out.vars[CookieVar] = existing + "; " + fragment
	} else {
		out.vars[CookieVar] = fragment
	}
	return out
}

// Names returns the sorted variable names.
func (r *Request) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.vars))
	for k := range r.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r *Request) clone() *Request {
	out := &Request{vars: make(map[string]string)}
	if r == nil {
		return out
	}
	for k, v := range r.vars {
		out.vars[k] = v
	}
	return out
}

func isRequestVar(name string) bool {
	return strings.HasPrefix(name, HeaderPrefix) || name == RemoteAddrVar
}

func upperCaseAndUnderscore(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return r - ('a' - 'A')
	case r == '-':
		return '_'
	case r == '=':
		// An '=' in a name would split the "key=value" entry.
		return '_'
	}
	return r
}
