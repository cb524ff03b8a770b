package tracker

import (
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "abcdef0123456789abcdef0123456789"

func TestVisit_MinimalPageview(t *testing.T) {
	v := NewVisit(Context{TargetURL: "https://example.com"}, 1)
	require.NoError(t, v.SetPageID("123456"))

	require.Equal(t,
		"idsite=1&rec=1&apiv=1&pv_id=123456&url=https%3A%2F%2Fexample.com",
		v.Finalize(),
	)
}

func TestVisit_SeededDefaults(t *testing.T) {
	v := NewVisit(Context{}, 7)
	query := v.Finalize()

	require.True(t, strings.HasPrefix(query, "idsite=7&rec=1&apiv=1&pv_id="))
	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{6}$`), values.Get("pv_id"))
	require.NotContains(t, values, "url")
	require.NotContains(t, values, "cip")
}

func TestVisit_SetterValidation(t *testing.T) {
	cases := map[string]struct {
		call         func(v *Visit) error
		wantContains string
	}{
		"event without category": {
			call:         func(v *Visit) error { return v.SetEvent("", "click", "") },
			wantContains: "Event Category",
		},
		"event without action": {
			call:         func(v *Visit) error { return v.SetEvent("Videos", "", "") },
			wantContains: "Event action",
		},
		"content impression without name": {
			call:         func(v *Visit) error { return v.SetContentImpression("", "", "") },
			wantContains: "content name",
		},
		"content interaction without interaction": {
			call:         func(v *Visit) error { return v.SetContentInteraction("", "Ad", "", "") },
			wantContains: "content interaction",
		},
		"content interaction without name": {
			call:         func(v *Visit) error { return v.SetContentInteraction("click", "", "", "") },
			wantContains: "content name",
		},
		"empty ip": {
			call:         func(v *Visit) error { return v.SetIP("") },
			wantContains: "client IP",
		},
		"garbage ip": {
			call:         func(v *Visit) error { return v.SetIP("not-an-ip") },
			wantContains: "client IP",
		},
		"empty user id": {
			call:         func(v *Visit) error { return v.SetUserID("") },
			wantContains: "user id",
		},
		"empty page id": {
			call:         func(v *Visit) error { return v.SetPageID("") },
			wantContains: "pageview id",
		},
		"page id with wrong alphabet": {
			call:         func(v *Visit) error { return v.SetPageID("ABCDEF") },
			wantContains: "pageview id",
		},
		"page id with wrong length": {
			call:         func(v *Visit) error { return v.SetPageID("abcd") },
			wantContains: "pageview id",
		},
		"visitor id too short": {
			call:         func(v *Visit) error { return v.SetVisitorID("abc123") },
			wantContains: "visitor id",
		},
		"auth token with wrong length": {
			call:         func(v *Visit) error { return v.SetAuthToken("short") },
			wantContains: "auth token",
		},
		"custom variable index out of range": {
			call: func(v *Visit) error {
				return v.SetCustomVariable(6, "name", "value", ScopePage)
			},
			wantContains: "custom variable index",
		},
		"custom variable without name": {
			call: func(v *Visit) error {
				return v.SetCustomVariable(1, "", "value", ScopeVisit)
			},
			wantContains: "custom variable name",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewVisit(Context{}, 1)
			err := tc.call(v)

			var vErr ValidationError
			require.ErrorAs(t, err, &vErr)
			require.ErrorContains(t, err, tc.wantContains)
			// failed setters must not leave partial state behind
			require.NotContains(t, v.Finalize(), tc.wantContains)
		})
	}
}

func TestVisit_FailedSetterLeavesKeyAbsent(t *testing.T) {
	v := NewVisit(Context{}, 1)
	require.Error(t, v.SetIP(""))

	values, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.NotContains(t, values, "cip")
}

func TestVisit_Idempotence(t *testing.T) {
	v := NewVisit(Context{}, 1)
	v.SetPageView("A")
	v.SetPageView("B")

	query := v.Finalize()
	require.Equal(t, 1, strings.Count(query, "action_name="))
	require.Contains(t, query, "action_name=B")
}

func TestVisit_FullChain(t *testing.T) {
	v := NewVisit(Context{UserAgent: "test-agent"}, 1)

	require.NoError(t, v.SetPageID("123456"))
	v.SetPageView("Front page")
	v.SetRand("184354")
	require.NoError(t, v.SetEvent("Videos", "play", "trailer", 2))
	require.NoError(t, v.SetContentImpression("Banner", "ad.jpg", "https://ad.example.com"))
	require.NoError(t, v.SetContentInteraction("click", "Banner", "ad.jpg", "https://ad.example.com"))
	v.SetSiteSearch("gopher plush", "toys", 12)
	v.SetGoal(3, 42.5)
	v.SetDownload("https://example.com/file.zip")
	v.SetOutlink("https://elsewhere.example.org")
	require.NoError(t, v.SetIP("203.0.113.7"))
	require.NoError(t, v.SetUserID("user-77"))
	require.NoError(t, v.SetAuthToken(testToken))

	query := v.Finalize()
	require.True(t, strings.HasSuffix(query, "token_auth="+testToken))

	for _, key := range []string{
		"idsite", "rec", "apiv", "pv_id", "action_name", "rand",
		"e_c", "e_a", "e_n", "e_v",
		"c_i", "c_n", "c_p", "c_t",
		"search", "search_cat", "search_count",
		"idgoal", "revenue", "download", "link",
		"cip", "uid", "token_auth",
	} {
		assert.Equalf(t, 1, strings.Count(query, key+"="), "key %s", key)
	}

	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	assert.Equal(t, "Front page", values.Get("action_name"))
	assert.Equal(t, "Videos", values.Get("e_c"))
	assert.Equal(t, "play", values.Get("e_a"))
	assert.Equal(t, "2", values.Get("e_v"))
	assert.Equal(t, "click", values.Get("c_i"))
	assert.Equal(t, "gopher plush", values.Get("search"))
	assert.Equal(t, "12", values.Get("search_count"))
	assert.Equal(t, "42.5", values.Get("revenue"))
	assert.Equal(t, "203.0.113.7", values.Get("cip"))
}

func TestVisit_ContentPieceDefaultsToUnknown(t *testing.T) {
	v := NewVisit(Context{}, 1)
	require.NoError(t, v.SetContentImpression("Banner", "", ""))

	values, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.Equal(t, "Unknown", values.Get("c_p"))
	require.NotContains(t, values, "c_t")
}

func TestVisit_SiteSearchZeroResults(t *testing.T) {
	v := NewVisit(Context{}, 1)
	v.SetSiteSearch("no such thing", "", 0)

	values, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.Equal(t, "0", values.Get("search_count"))
	require.NotContains(t, values, "search_cat")
}

func TestVisit_GoalZeroRevenueOmitted(t *testing.T) {
	v := NewVisit(Context{}, 1)
	v.SetGoal(5)

	values, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.Equal(t, "5", values.Get("idgoal"))
	require.NotContains(t, values, "revenue")
}

func TestVisit_FinalizeResetsPageScopeOnly(t *testing.T) {
	v := NewVisit(Context{TargetURL: "https://example.com/a"}, 1)
	require.NoError(t, v.SetUserID("user-1"))
	require.NoError(t, v.SetAuthToken(testToken))
	require.NoError(t, v.SetEvent("Videos", "play", ""))
	v.SetPageView("first")

	first, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.Equal(t, "play", first.Get("e_a"))

	second, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)

	// visit scope survives
	require.Equal(t, "1", second.Get("idsite"))
	require.Equal(t, "user-1", second.Get("uid"))
	require.Equal(t, testToken, second.Get("token_auth"))
	// page and event scope cleared
	require.NotContains(t, second, "action_name")
	require.NotContains(t, second, "e_c")
	require.NotContains(t, second, "e_a")
	// fresh pageview id
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{6}$`), second.Get("pv_id"))
	require.NotEqual(t, first.Get("pv_id"), second.Get("pv_id"))
}

func TestVisit_TokenLengthOption(t *testing.T) {
	v := NewVisit(Context{}, 1, WithTokenLength(10))
	require.NoError(t, v.SetAuthToken("auth_token"))
	require.Error(t, v.SetAuthToken(testToken))
}

func TestVisit_CustomVariables(t *testing.T) {
	v := NewVisit(Context{}, 1)
	require.NoError(t, v.SetCustomVariable(1, "plan", "pro", ScopeVisit))
	require.NoError(t, v.SetCustomVariable(2, "theme", "dark", ScopeVisit))
	require.NoError(t, v.SetCustomVariable(1, "section", "docs", ScopePage))

	first, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.JSONEq(t, `{"1":["plan","pro"],"2":["theme","dark"]}`, first.Get("_cvar"))
	require.JSONEq(t, `{"1":["section","docs"]}`, first.Get("cvar"))

	// page-scope variables do not leak into the next pageview
	second, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.JSONEq(t, `{"1":["plan","pro"],"2":["theme","dark"]}`, second.Get("_cvar"))
	require.NotContains(t, second, "cvar")
}

func TestVisit_CharsetAndImageResponse(t *testing.T) {
	v := NewVisit(Context{}, 1)
	v.SetCharset("ISO-8859-1")
	v.DisableSendImage()

	first, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.Equal(t, "ISO-8859-1", first.Get("cs"))
	require.Equal(t, "0", first.Get("send_image"))

	// both are page scope and do not leak into the next pageview
	second, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.NotContains(t, second, "cs")
	require.NotContains(t, second, "send_image")
}

func TestVisit_EmptyCharsetOmitted(t *testing.T) {
	v := NewVisit(Context{}, 1)
	v.SetCharset("")

	values, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.NotContains(t, values, "cs")
}

func TestVisit_ReferrerFromContext(t *testing.T) {
	v := NewVisit(Context{
		TargetURL:   "https://example.com/page",
		ReferrerURL: "https://www.example.org/from",
	}, 1)

	values, err := url.ParseQuery(v.Finalize())
	require.NoError(t, err)
	require.Equal(t, "https://www.example.org/from", values.Get("urlref"))
}
