package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParams_EncodeOrderAndEscaping(t *testing.T) {
	cases := map[string]struct {
		build    func(p *Params)
		expected string
	}{
		"empty set yields empty string": {
			build:    func(p *Params) {},
			expected: "",
		},
		"insertion order preserved": {
			build: func(p *Params) {
				p.Set("b", "2")
				p.Set("a", "1")
				p.Set("c", "3")
			},
			expected: "b=2&a=1&c=3",
		},
		"last write wins keeps first position": {
			build: func(p *Params) {
				p.Set("a", "1")
				p.Set("b", "2")
				p.Set("a", "overwritten")
			},
			expected: "a=overwritten&b=2",
		},
		"nil values dropped": {
			build: func(p *Params) {
				p.Set("a", "1")
				p.Set("gone", nil)
				p.Set("b", "2")
			},
			expected: "a=1&b=2",
		},
		"only nil values yields empty string": {
			build: func(p *Params) {
				p.Set("gone", nil)
			},
			expected: "",
		},
		"form escaping with plus for space": {
			build: func(p *Params) {
				p.Set("action_name", "Home / Front page")
				p.Set("url", "https://example.com/a?b=c")
			},
			expected: "action_name=Home+%2F+Front+page&url=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc",
		},
		"numbers rendered bare": {
			build: func(p *Params) {
				p.Set("idsite", 1)
				p.Set("revenue", 49.99)
				p.Set("count", int64(12))
			},
			expected: "idsite=1&revenue=49.99&count=12",
		},
		"list encoded as JSON then escaped": {
			build: func(p *Params) {
				p.Set("items", [][]any{{"sku-1", "Widget", "", 9.5, 2}})
			},
			expected: "items=%5B%5B%22sku-1%22%2C%22Widget%22%2C%22%22%2C9.5%2C2%5D%5D",
		},
		"map encoded as JSON then escaped": {
			build: func(p *Params) {
				p.Set("cvar", map[string][2]string{"1": {"lang", "go"}})
			},
			expected: "cvar=%7B%221%22%3A%5B%22lang%22%2C%22go%22%5D%7D",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewParams()
			tc.build(p)
			require.Equal(t, tc.expected, p.Encode())
		})
	}
}

func TestParams_Delete(t *testing.T) {
	p := NewParams()
	p.Set("a", "1")
	p.Set("b", "2")
	p.Set("c", "3")

	p.Delete("b")
	require.Equal(t, "a=1&c=3", p.Encode())
	require.Equal(t, 2, p.Len())

	// deleting an absent key is a no-op
	p.Delete("missing")
	require.Equal(t, []string{"a", "c"}, p.Keys())

	// re-setting a deleted key appends at the end
	p.Set("b", "4")
	require.Equal(t, "a=1&c=3&b=4", p.Encode())
}
