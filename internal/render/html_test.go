package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToMarkdown(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold and italic",
			input:    "<p>Hello <strong>world</strong> and <em>friends</em></p>",
			expected: "Hello **world** and *friends*",
		},
		{
			name:     "underline and strikethrough",
			input:    "<u>under</u> <s>gone</s>",
			expected: "__under__ ~~gone~~",
		},
		{
			name:     "line breaks",
			input:    "first<br>second",
			expected: "first\nsecond",
		},
		{
			name:     "list items",
			input:    "<ul><li>one</li><li>two</li></ul>",
			expected: "- one\n- two",
		},
		{
			name:     "anchor with label",
			input:    `<a href="https://example.com">Example</a>`,
			expected: "[Example](https://example.com)",
		},
		{
			name:     "anchor without href keeps label",
			input:    "<a>just text</a>",
			expected: "just text",
		},
		{
			name:     "script dropped",
			input:    "<p>keep</p><script>alert(1)</script>",
			expected: "keep",
		},
		{
			name:     "unknown tags stripped",
			input:    "<div><span>nested</span></div>",
			expected: "nested",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, HTMLToMarkdown(tc.input))
		})
	}
}

func TestFormatRichText(t *testing.T) {
	assert.Equal(t, "plain text", FormatRichText("plain text", 100))
	assert.Equal(t, "**bold**", FormatRichText("<b>bold</b>", 100))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "trimmed", Truncate("  trimmed  ", 10))

	long := Truncate("this is a longer sentence", 10)
	assert.LessOrEqual(t, len(long), 10)
	assert.Contains(t, long, "...")
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	value := "héllo wörld with àccénts évérywhère"
	for max := 4; max < len(value); max++ {
		result := Truncate(value, max)
		assert.True(t, isValidUTF8(result), "truncate to %d produced invalid UTF-8", max)
	}
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
