package tracker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"
)

// Collector parameter names. The wire contract is the Matomo tracking
// HTTP API; keys are grouped by the setter that owns them.
const (
	keySiteID     = "idsite"
	keyRecord     = "rec"
	keyAPIVersion = "apiv"
	keyPageviewID = "pv_id"
	keyActionName = "action_name"
	keyRand       = "rand"
	keyURL        = "url"
	keyReferrer   = "urlref"

	keyEventCategory = "e_c"
	keyEventAction   = "e_a"
	keyEventName     = "e_n"
	keyEventValue    = "e_v"

	keyContentInteraction = "c_i"
	keyContentName        = "c_n"
	keyContentPiece       = "c_p"
	keyContentTarget      = "c_t"

	keySearch         = "search"
	keySearchCategory = "search_cat"
	keySearchCount    = "search_count"

	keyGoalID   = "idgoal"
	keyRevenue  = "revenue"
	keyDownload = "download"
	keyLink     = "link"

	keyClientIP        = "cip"
	keyUserID          = "uid"
	keyVisitorID       = "_id"
	keyForcedVisitorID = "cid"
	keyTokenAuth       = "token_auth"

	keyOrderID     = "ec_id"
	keyOrderItems  = "ec_items"
	keyOrderSub    = "ec_st"
	keyOrderTax    = "ec_tx"
	keyOrderShip   = "ec_sh"
	keyOrderDisc   = "ec_dt"
	keyLastOrderTS = "_ects"

	keyCreatedTS   = "_idts"
	keyVisitCount  = "_idvc"
	keyLastVisitTS = "_viewts"
	keyAttribution = "_ref"
	keyAttribTS    = "_refts"

	keyVisitCvars = "_cvar"
	keyPageCvars  = "cvar"

	keyUserAgent = "ua"
	keyLanguage  = "lang"

	keyCharset   = "cs"
	keySendImage = "send_image"
)

const (
	pageviewIDBytes = 3 // 6 hex chars
	visitorIDBytes  = 8 // 16 hex chars

	defaultTokenLength  = 32
	defaultContentPiece = "Unknown"
	maxCustomVarIndex   = 5
)

var (
	pageviewIDPattern = regexp.MustCompile(`^[0-9a-f]{6}$`)
	visitorIDPattern  = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

// visitScoped holds the keys that survive Finalize. Everything else is
// page or event scope and is cleared so the next pageview on the same
// Visit starts clean while keeping visit identity.
var visitScoped = map[string]struct{}{
	keySiteID:          {},
	keyRecord:          {},
	keyAPIVersion:      {},
	keyClientIP:        {},
	keyUserID:          {},
	keyVisitorID:       {},
	keyForcedVisitorID: {},
	keyTokenAuth:       {},
	keyCreatedTS:       {},
	keyVisitCount:      {},
	keyLastVisitTS:     {},
	keyLastOrderTS:     {},
	keyAttribution:     {},
	keyAttribTS:        {},
	keyVisitCvars:      {},
	keyUserAgent:       {},
	keyLanguage:        {},
}

// Visit accumulates tracking parameters for one logical visit. It is not
// safe for concurrent use; scope one Visit to one inbound request and
// discard it after the outbound send completes.
type Visit struct {
	ctx    Context
	siteID int
	params *Params

	pageviewID  string
	tokenLength int
	now         func() time.Time

	items      []Item
	pageCvars  map[string][2]string
	visitCvars map[string][2]string

	cookieCfg *CookieConfig
	visitor   *visitorState
	refURL    string
	refTS     int64
}

// VisitOption adjusts Visit construction.
type VisitOption func(*Visit)

// WithTokenLength overrides the expected auth token length checked by
// SetAuthToken.
func WithTokenLength(n int) VisitOption {
	return func(v *Visit) {
		v.tokenLength = n
	}
}

// WithClock overrides the time source used for cookie timestamps.
func WithClock(now func() time.Time) VisitOption {
	return func(v *Visit) {
		v.now = now
	}
}

// NewVisit seeds the required collector defaults (site id, record flag,
// API version and a random pageview id) for one visit on site siteID.
func NewVisit(ctx Context, siteID int, opts ...VisitOption) *Visit {
	v := &Visit{
		ctx:         ctx,
		siteID:      siteID,
		params:      NewParams(),
		pageviewID:  randomHex(pageviewIDBytes),
		tokenLength: defaultTokenLength,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.params.Set(keySiteID, siteID)
	v.params.Set(keyRecord, 1)
	v.params.Set(keyAPIVersion, 1)
	v.params.Set(keyPageviewID, v.pageviewID)
	return v
}

// SetPageView records the page title for the current pageview.
func (v *Visit) SetPageView(title string) {
	v.params.Set(keyActionName, title)
}

// SetRand sets the cache-buster parameter.
func (v *Visit) SetRand(value string) {
	v.params.Set(keyRand, value)
}

// SetEvent records a custom event. Category and action are required;
// name is omitted when empty and value is omitted when not supplied.
func (v *Visit) SetEvent(category, action, name string, value ...float64) error {
	if category == "" {
		return newValidationError("Event Category", "must not be empty")
	}
	if action == "" {
		return newValidationError("Event action", "must not be empty")
	}

	v.params.Set(keyEventCategory, category)
	v.params.Set(keyEventAction, action)
	if name != "" {
		v.params.Set(keyEventName, name)
	}
	if len(value) > 0 {
		v.params.Set(keyEventValue, value[0])
	}
	return nil
}

// SetContentImpression records that a content block was rendered. Piece
// defaults to "Unknown" when empty; target is omitted when empty.
func (v *Visit) SetContentImpression(name, piece, target string) error {
	if name == "" {
		return newValidationError("content name", "must not be empty")
	}
	v.setContent(name, piece, target)
	return nil
}

// SetContentInteraction records an interaction (e.g. "click") with a
// previously rendered content block.
func (v *Visit) SetContentInteraction(interaction, name, piece, target string) error {
	if interaction == "" {
		return newValidationError("content interaction", "must not be empty")
	}
	if name == "" {
		return newValidationError("content name", "must not be empty")
	}

	v.params.Set(keyContentInteraction, interaction)
	v.setContent(name, piece, target)
	return nil
}

func (v *Visit) setContent(name, piece, target string) {
	if piece == "" {
		piece = defaultContentPiece
	}
	v.params.Set(keyContentName, name)
	v.params.Set(keyContentPiece, piece)
	if target != "" {
		v.params.Set(keyContentTarget, target)
	}
}

// SetSiteSearch records an internal site search. Category is omitted when
// empty; the result count is omitted when not supplied, so a genuine
// zero-result search still serializes search_count=0.
func (v *Visit) SetSiteSearch(keyword, category string, resultCount ...int) {
	v.params.Set(keySearch, keyword)
	if category != "" {
		v.params.Set(keySearchCategory, category)
	}
	if len(resultCount) > 0 {
		v.params.Set(keySearchCount, resultCount[0])
	}
}

// SetGoal records a goal conversion. Revenue is omitted when zero or not
// supplied.
func (v *Visit) SetGoal(goalID int, revenue ...float64) {
	v.params.Set(keyGoalID, goalID)
	if len(revenue) > 0 && revenue[0] != 0 {
		v.params.Set(keyRevenue, revenue[0])
	}
}

// SetDownload records a file download action.
func (v *Visit) SetDownload(url string) {
	v.params.Set(keyDownload, url)
}

// SetOutlink records a click on an outbound link.
func (v *Visit) SetOutlink(url string) {
	v.params.Set(keyLink, url)
}

// SetIP overrides the visitor IP reported to the collector. An empty or
// unparsable address fails; not calling SetIP leaves cip absent.
func (v *Visit) SetIP(ip string) error {
	if ip == "" {
		return newValidationError("client IP", "must not be empty")
	}
	if net.ParseIP(ip) == nil {
		return newValidationError("client IP", fmt.Sprintf("%q is not an IP address", ip))
	}
	v.params.Set(keyClientIP, ip)
	return nil
}

// SetUserID attaches the site's own user identifier to the visit.
func (v *Visit) SetUserID(userID string) error {
	if userID == "" {
		return newValidationError("user id", "must not be empty")
	}
	v.params.Set(keyUserID, userID)
	return nil
}

// SetPageID overrides the auto-generated pageview id. The id must be
// exactly 6 lowercase hex characters.
func (v *Visit) SetPageID(id string) error {
	if id == "" {
		return newValidationError("pageview id", "must not be empty")
	}
	if !pageviewIDPattern.MatchString(id) {
		return newValidationError("pageview id", "must be 6 lowercase hex characters")
	}
	v.pageviewID = id
	v.params.Set(keyPageviewID, id)
	return nil
}

// SetVisitorID forces the visitor identifier, overriding cookie-derived
// identity. The id must be exactly 16 lowercase hex characters.
func (v *Visit) SetVisitorID(id string) error {
	if !visitorIDPattern.MatchString(id) {
		return newValidationError("visitor id", "must be 16 lowercase hex characters")
	}
	v.params.Set(keyForcedVisitorID, id)
	return nil
}

// SetAuthToken attaches the collector API token required by parameters
// such as cip. The token must have the expected length (32 unless
// configured via WithTokenLength).
func (v *Visit) SetAuthToken(token string) error {
	if len(token) != v.tokenLength {
		return newValidationError("auth token",
			fmt.Sprintf("must be exactly %d characters", v.tokenLength))
	}
	v.params.Set(keyTokenAuth, token)
	return nil
}

// SetDeviceHints forwards user agent and language as query parameters for
// delivery paths that cannot carry them as request headers (bulk mode).
func (v *Visit) SetDeviceHints(userAgent, language string) {
	if userAgent != "" {
		v.params.Set(keyUserAgent, userAgent)
	}
	if language != "" {
		v.params.Set(keyLanguage, language)
	}
}

// SetCharset reports the page charset when it is not the collector's
// UTF-8 default.
func (v *Visit) SetCharset(charset string) {
	if charset != "" {
		v.params.Set(keyCharset, charset)
	}
}

// DisableSendImage asks the collector to answer with an empty 204
// instead of the 1x1 transparent GIF.
func (v *Visit) DisableSendImage() {
	v.params.Set(keySendImage, 0)
}

// CustomVarScope selects where a custom variable is reported.
type CustomVarScope string

const (
	ScopeVisit CustomVarScope = "visit"
	ScopePage  CustomVarScope = "page"
)

// SetCustomVariable stores a name/value pair in one of the collector's
// five custom-variable slots for the given scope.
func (v *Visit) SetCustomVariable(index int, name, value string, scope CustomVarScope) error {
	if index < 1 || index > maxCustomVarIndex {
		return newValidationError("custom variable index",
			fmt.Sprintf("must be between 1 and %d", maxCustomVarIndex))
	}
	if name == "" {
		return newValidationError("custom variable name", "must not be empty")
	}

	slot := strconv.Itoa(index)
	switch scope {
	case ScopeVisit:
		if v.visitCvars == nil {
			v.visitCvars = make(map[string][2]string)
		}
		v.visitCvars[slot] = [2]string{name, value}
		v.params.Set(keyVisitCvars, v.visitCvars)
	case ScopePage:
		if v.pageCvars == nil {
			v.pageCvars = make(map[string][2]string)
		}
		v.pageCvars[slot] = [2]string{name, value}
		v.params.Set(keyPageCvars, v.pageCvars)
	default:
		return newValidationError("custom variable scope",
			fmt.Sprintf("unknown scope %q", scope))
	}
	return nil
}

// Params exposes the accumulated parameters, mostly for tests.
func (v *Visit) Params() *Params {
	return v.params
}

// Finalize renders the accumulated parameters as the collector query
// string and closes the current pageview: page- and event-scoped keys are
// cleared and the pageview id regenerated, while visit-scoped identity
// (site id, visitor id, cip, uid, token) is preserved for the next call.
func (v *Visit) Finalize() string {
	if v.ctx.TargetURL != "" {
		v.params.Set(keyURL, v.ctx.TargetURL)
	}
	if v.ctx.ReferrerURL != "" {
		v.params.Set(keyReferrer, v.ctx.ReferrerURL)
	}

	query := v.params.Encode()
	v.resetPageScope()
	return query
}

func (v *Visit) resetPageScope() {
	for _, key := range v.params.Keys() {
		if _, ok := visitScoped[key]; !ok {
			v.params.Delete(key)
		}
	}
	v.pageCvars = nil
	v.items = nil
	v.pageviewID = randomHex(pageviewIDBytes)
	v.params.Set(keyPageviewID, v.pageviewID)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("tracker: read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
