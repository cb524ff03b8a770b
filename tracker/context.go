package tracker

import (
	"net"
	"net/http"
	"strings"
)

// Context is an immutable snapshot of the inbound request attributes a
// tracking request derives from. Build one per inbound request with
// FromRequest and discard it when the request is done. An empty field
// means the attribute was absent and is encoded as omission downstream.
type Context struct {
	TargetURL      string
	ReferrerURL    string
	ClientIP       string
	UserAgent      string
	AcceptLanguage string

	cookies map[string]string
}

// FromRequest extracts a Context from an inbound request. It always
// succeeds; attributes the request does not carry stay zero.
func FromRequest(r *http.Request) Context {
	c := Context{
		TargetURL:      requestURL(r),
		ReferrerURL:    r.Referer(),
		ClientIP:       clientIP(r),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}

	if cookies := r.Cookies(); len(cookies) > 0 {
		c.cookies = make(map[string]string, len(cookies))
		for _, ck := range cookies {
			c.cookies[ck.Name] = ck.Value
		}
	}
	return c
}

// Cookie looks up an inbound cookie by exact name.
func (c Context) Cookie(name string) (string, bool) {
	v, ok := c.cookies[name]
	return v, ok
}

func requestURL(r *http.Request) string {
	if r.Host == "" {
		return r.URL.String()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// clientIP resolves the remote address, preferring proxy headers when the
// socket address is not usable. Unlike the usual "0.0.0.0" fallback, an
// unresolvable address yields "" so it serializes as absent.
func clientIP(r *http.Request) string {
	out, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if xoff := r.Header.Get("X-Original-Forwarded-For"); xoff != "" {
			out = xoff
		} else {
			xff := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
			if len(xff) > 0 {
				out = strings.TrimSpace(xff[0])
			}
		}
	}

	if out == "" || net.ParseIP(out) == nil {
		return ""
	}
	return out
}
