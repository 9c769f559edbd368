// Package cgiresp parses the output of DSM CGI programs.
//
// A CGI program writes an HTTP response to its standard output: a block of
// "Name: value" header lines, one blank line, and a body. The DSM web
// management scripts put a JSON object in the body which always carries a
// "success" field and, depending on the script, "result" and "SynoToken".
package cgiresp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnexpectedResponse is returned when CGI output cannot be interpreted.
var ErrUnexpectedResponse = errors.New("unexpected response")

// Error describes a CGI response that could not be parsed.
// It always carries the raw output so failures can be diagnosed from logs.
type Error struct {
	Reason string
	Raw    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s:\n%s", ErrUnexpectedResponse, e.Reason, e.Raw)
}

// Unwrap returns ErrUnexpectedResponse so callers can use errors.Is.
func (e *Error) Unwrap() error {
	return ErrUnexpectedResponse
}

// Options controls parsing leniency.
type Options struct {
	// AllowEmptyBody makes a response without a body parse successfully,
	// with the body set to an empty JSON object.
	AllowEmptyBody bool
}

// emptyBody is the sentinel used when an empty body is accepted.
var emptyBody = gjson.Parse("{}")

// Response is a parsed CGI response.
type Response struct {
	// Header maps header names, as received, to their values.
	// When a name repeats the last occurrence wins.
	Header map[string]string

	// BodyText is the body exactly as it followed the blank line.
	BodyText string

	// Body is the decoded JSON body.
	Body gjson.Result

	// Raw is the complete input.
	Raw string

	names []string
}

// Parse splits raw CGI output into headers and a JSON body.
// Header lines are split at the first colon, so values may contain colons,
// as Set-Cookie expiry times do.
func Parse(raw string, opts Options) (*Response, error) {
	resp := &Response{
		Header: make(map[string]string),
		Raw:    raw,
	}

	lines := strings.Split(raw, "\n")
	inBody := false
	var body []string
	for _, line := range lines {
		if inBody {
			body = append(body, line)
			continue
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			inBody = true
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &Error{Reason: fmt.Sprintf("malformed header line %q", line), Raw: raw}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &Error{Reason: fmt.Sprintf("empty header name in %q", line), Raw: raw}
		}
		if _, seen := resp.Header[name]; !seen {
			resp.names = append(resp.names, name)
		}
		resp.Header[name] = strings.TrimSpace(value)
	}

	resp.BodyText = strings.Join(body, "\n")
	if strings.TrimSpace(resp.BodyText) == "" {
		if !opts.AllowEmptyBody {
			return nil, &Error{Reason: "empty body", Raw: raw}
		}
		resp.Body = emptyBody
		return resp, nil
	}

	if !gjson.Valid(resp.BodyText) {
		return nil, &Error{Reason: "body is not valid JSON", Raw: raw}
	}
	resp.Body = gjson.Parse(resp.BodyText)
	if !resp.Body.IsObject() {
		return nil, &Error{Reason: "body is not a JSON object", Raw: raw}
	}
	if !resp.Body.Get("success").Exists() {
		return nil, &Error{Reason: `body has no "success" field`, Raw: raw}
	}
	return resp, nil
}

// Names returns the header names in order of first appearance.
func (r *Response) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Lookup returns the value of the named header, matching the name
// case-insensitively.
func (r *Response) Lookup(name string) (string, bool) {
	if v, ok := r.Header[name]; ok {
		return v, true
	}
	for k, v := range r.Header {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Get returns a body field using a gjson path.
func (r *Response) Get(path string) gjson.Result {
	return r.Body.Get(path)
}

// Success reports the body's "success" flag.
func (r *Response) Success() bool {
	return r.Body.Get("success").Bool()
}

// Result returns the body's "result" field, or "" when absent.
func (r *Response) Result() string {
	return r.Body.Get("result").String()
}
