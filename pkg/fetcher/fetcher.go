// Package fetcher defines the HTTP capability used to talk to the registry
// portal. Every call carries an explicit Session so that several crawl
// configurations can run side by side without sharing cookie state.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Fetcher abstracts the GET/POST requests made against the portal.
type Fetcher interface {
	// Get retrieves a page.
	Get(ctx context.Context, sess Session, url string) (Content, error)

	// Post submits a form-encoded body and returns the resulting page.
	Post(ctx context.Context, sess Session, url string, form map[string]string) (Content, error)

	// Close releases any resources.
	Close() error

	// Type returns a string identifying the fetcher type.
	Type() string
}

// SessionCookie is the name of the servlet session cookie used by the portal.
const SessionCookie = "JSESSIONID"

// Session carries the portal session identifier.
type Session struct {
	ID string
}

// CookieHeader returns the Cookie header value for the session, or "" when
// the session is empty.
func (s Session) CookieHeader() string {
	if s.ID == "" {
		return ""
	}
	return SessionCookie + "=" + s.ID
}

// Content represents a fetched page.
type Content struct {
	URL         string
	HTML        string
	StatusCode  int
	ContentType string
	FetchedAt   time.Time
	Cookies     []*http.Cookie
}

// Cookie returns the value of the named response cookie. Cookies are kept
// in response order across redirects, so the last one set wins.
func (c Content) Cookie(name string) (string, bool) {
	value, found := "", false
	for _, ck := range c.Cookies {
		if ck.Name == name {
			value, found = ck.Value, true
		}
	}
	return value, found
}

// ErrUnexpectedStatus is wrapped by a FetchError when the portal answered
// with anything other than 200 OK.
var ErrUnexpectedStatus = errors.New("unexpected status")

// FetchError reports a transport failure or a non-200 response.
// Callers recover from it locally by skipping the affected page or record.
type FetchError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is, or wraps, a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
