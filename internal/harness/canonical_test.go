package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"bool", true, "true"},
		{"strings", []string{"a", "b"}, `["a","b"]`},
		{"nested strings", [][]string{{"a"}, {}}, `[["a"],[]]`},
		{"sorted keys", map[string]any{"zebra": 1, "alpha": 2}, `{"alpha":2,"zebra":1}`},
		{"no html escape", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"escaped backslash stays", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	got, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16, where the emoji is a surrogate pair starting 0xD83D.
	got, err := MarshalCanonical(map[string]any{"\U0001F600": 1, "\uFF61": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uFF61\":2}", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, float32(2), struct{}{}, []any{nil}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%#v", v)
	}
}
