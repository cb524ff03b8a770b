package tracker

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultCookiePrefix = "_pk"
	defaultCookiePath   = "/"

	// Collector defaults: 13 months for identity, 30 minutes for the
	// session marker, 6 months for referrer attribution.
	defaultIDExpiry      = 393 * 24 * time.Hour
	defaultSessionExpiry = 30 * time.Minute
	defaultRefExpiry     = 182 * 24 * time.Hour

	visitorCookieFields = 6
)

// CookieConfig controls first-party cookie emulation. Zero fields fall
// back to the collector defaults.
type CookieConfig struct {
	Prefix        string
	Domain        string
	Path          string
	Secure        bool
	IDExpiry      time.Duration
	SessionExpiry time.Duration
	RefExpiry     time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Prefix == "" {
		c.Prefix = defaultCookiePrefix
	}
	if c.Path == "" {
		c.Path = defaultCookiePath
	}
	if c.IDExpiry == 0 {
		c.IDExpiry = defaultIDExpiry
	}
	if c.SessionExpiry == 0 {
		c.SessionExpiry = defaultSessionExpiry
	}
	if c.RefExpiry == 0 {
		c.RefExpiry = defaultRefExpiry
	}
	return c
}

// name builds "<prefix>_<base>.<siteID>.<domainHash>".
func (c CookieConfig) name(base string, siteID int) string {
	return fmt.Sprintf("%s_%s.%d.%s", c.Prefix, base, siteID, c.domainHash())
}

// domainHash is the first 4 hex characters of SHA-1(domain + path),
// matching what the collector's JS tracker computes.
func (c CookieConfig) domainHash() string {
	sum := sha1.Sum([]byte(c.Domain + c.Path))
	return hex.EncodeToString(sum[:])[:4]
}

// Cookie is an intended response cookie, computed as data. This package
// never writes headers; the hosting response writer performs emission.
type Cookie struct {
	Name    string
	Value   string
	Path    string
	Domain  string
	Secure  bool
	Expires time.Time
}

// visitorState is the decoded identity cookie:
// visitorID.createdTs.visitCount.currentTs.lastVisitTs.lastOrderTs.
type visitorState struct {
	id          string
	createdTS   int64
	visitCount  int
	currentTS   int64
	lastVisitTS int64
	lastOrderTS int64
}

func (s visitorState) encode() string {
	return strings.Join([]string{
		s.id,
		strconv.FormatInt(s.createdTS, 10),
		strconv.Itoa(s.visitCount),
		strconv.FormatInt(s.currentTS, 10),
		strconv.FormatInt(s.lastVisitTS, 10),
		strconv.FormatInt(s.lastOrderTS, 10),
	}, ".")
}

func parseVisitorCookie(raw string) (visitorState, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != visitorCookieFields {
		return visitorState{}, fmt.Errorf("visitor cookie: want %d fields, got %d", visitorCookieFields, len(parts))
	}
	if !visitorIDPattern.MatchString(parts[0]) {
		return visitorState{}, fmt.Errorf("visitor cookie: malformed visitor id %q", parts[0])
	}

	nums := make([]int64, visitorCookieFields-1)
	for i, p := range parts[1:] {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return visitorState{}, fmt.Errorf("visitor cookie: field %d: %w", i+1, err)
		}
		nums[i] = n
	}
	return visitorState{
		id:          parts[0],
		createdTS:   nums[0],
		visitCount:  int(nums[1]),
		currentTS:   nums[2],
		lastVisitTS: nums[3],
		lastOrderTS: nums[4],
	}, nil
}

// EnableCookies turns on first-party cookie emulation for this visit.
// Identity is restored from the inbound cookies when present; otherwise a
// fresh 16-hex visitor id is generated. A missing session cookie on a
// known visitor starts a new visit (count incremented, timestamps rolled).
func (v *Visit) EnableCookies(cfg CookieConfig) {
	cfg = cfg.withDefaults()
	v.cookieCfg = &cfg
	now := v.now().Unix()

	state := visitorState{
		id:         randomHex(visitorIDBytes),
		createdTS:  now,
		visitCount: 1,
		currentTS:  now,
	}
	if raw, ok := v.ctx.Cookie(cfg.name("id", v.siteID)); ok {
		if parsed, err := parseVisitorCookie(raw); err == nil {
			state = parsed
			if _, inSession := v.ctx.Cookie(cfg.name("ses", v.siteID)); !inSession {
				state.visitCount++
				state.lastVisitTS = state.currentTS
				state.currentTS = now
			}
		}
	}
	v.visitor = &state

	v.params.Set(keyVisitorID, state.id)
	v.params.Set(keyCreatedTS, state.createdTS)
	v.params.Set(keyVisitCount, state.visitCount)
	if state.lastVisitTS != 0 {
		v.params.Set(keyLastVisitTS, state.lastVisitTS)
	}
	if state.lastOrderTS != 0 {
		v.params.Set(keyLastOrderTS, state.lastOrderTS)
	}

	v.loadAttribution(cfg, now)
}

// loadAttribution restores the referrer-attribution cookie
// ([campaign, keyword, ts, url]) or seeds it from the inbound referrer.
// The cookie value is URL-escaped JSON: quotes and commas are not valid
// cookie octets. PathUnescape keeps a literal '+' intact, which the JS
// tracker's encodeURIComponent leaves unescaped.
func (v *Visit) loadAttribution(cfg CookieConfig, now int64) {
	if raw, ok := v.ctx.Cookie(cfg.name("ref", v.siteID)); ok {
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
		var ref [4]any
		if err := json.Unmarshal([]byte(raw), &ref); err == nil {
			if ts, ok := ref[2].(float64); ok {
				v.refTS = int64(ts)
			}
			if u, ok := ref[3].(string); ok {
				v.refURL = u
			}
		}
	}
	if v.refURL == "" && v.ctx.ReferrerURL != "" {
		v.refTS = now
		v.refURL = v.ctx.ReferrerURL
	}
	if v.refURL != "" {
		v.params.Set(keyAttribution, v.refURL)
		v.params.Set(keyAttribTS, v.refTS)
	}
}

// PendingCookies reports the cookies the caller should set on its own
// response to persist visitor state across requests. Returns nil unless
// EnableCookies was called.
func (v *Visit) PendingCookies() []Cookie {
	if v.cookieCfg == nil || v.visitor == nil {
		return nil
	}
	cfg := *v.cookieCfg
	now := v.now()

	cookies := []Cookie{
		{
			Name:    cfg.name("id", v.siteID),
			Value:   v.visitor.encode(),
			Path:    cfg.Path,
			Domain:  cfg.Domain,
			Secure:  cfg.Secure,
			Expires: now.Add(cfg.IDExpiry),
		},
		{
			Name:    cfg.name("ses", v.siteID),
			Value:   "*",
			Path:    cfg.Path,
			Domain:  cfg.Domain,
			Secure:  cfg.Secure,
			Expires: now.Add(cfg.SessionExpiry),
		},
	}

	if v.refURL != "" {
		value, err := json.Marshal([4]any{"", "", v.refTS, v.refURL})
		if err == nil {
			cookies = append(cookies, Cookie{
				Name:    cfg.name("ref", v.siteID),
				Value:   url.QueryEscape(string(value)),
				Path:    cfg.Path,
				Domain:  cfg.Domain,
				Secure:  cfg.Secure,
				Expires: now.Add(cfg.RefExpiry),
			})
		}
	}
	return cookies
}
