package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLocatorPrompt(t *testing.T) {
	candidates := []ElementDescriptor{
		{Index: 0, Tag: "a", Label: "Home"},
		{Index: 1, Tag: "button", Label: "Download"},
	}

	prompt := buildLocatorPrompt("the download button", candidates)

	assert.Contains(t, prompt, "Target: the download button")
	assert.Contains(t, prompt, "[0] <a> Home")
	assert.Contains(t, prompt, "[1] <button> Download")
}

func TestParseElementIndex(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		count   int
		want    int
		wantErr bool
	}{
		{name: "bare index", answer: "1", count: 3, want: 1},
		{name: "index with prose", answer: "The best match is element 2.", count: 3, want: 2},
		{name: "whitespace", answer: "  0 ", count: 1, want: 0},
		{name: "none", answer: "none", count: 3, wantErr: true},
		{name: "none uppercase", answer: "None", count: 3, wantErr: true},
		{name: "no digits", answer: "the download button", count: 3, wantErr: true},
		{name: "out of range", answer: "7", count: 3, wantErr: true},
		{name: "empty", answer: "", count: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseElementIndex(tt.answer, tt.count)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateLabel(t *testing.T) {
	assert.Equal(t, "Download the file", truncateLabel("  Download\n  the\tfile  "))
	assert.Equal(t, "", truncateLabel("   \n\t "))

	long := truncateLabel(stringOfLen(maxLabelLen + 50))
	assert.Len(t, long, maxLabelLen)
}

func TestTruncateLabel_KeepsValidUTF8(t *testing.T) {
	// The byte cut lands in the middle of the two-byte "é"; the whole rune
	// must go, not half of it.
	split := truncateLabel(stringOfLen(maxLabelLen-1) + "é")
	assert.True(t, utf8.ValidString(split))
	assert.Len(t, split, maxLabelLen-1)

	multibyte := truncateLabel(strings.Repeat("ü", maxLabelLen))
	assert.True(t, utf8.ValidString(multibyte))
	assert.LessOrEqual(t, len(multibyte), maxLabelLen)
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}

	return string(b)
}
