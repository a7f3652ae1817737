package browser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("tuyển dụng kỹ sư ", 300)

	out := truncate(long, maxSummaryLength)

	assert.LessOrEqual(t, len(out), maxSummaryLength+3)
	assert.True(t, utf8.ValidString(out), "truncation must not split a rune")
}

func TestTruncatePassesShortStrings(t *testing.T) {
	assert.Equal(t, "café", truncate("café", 10))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "one two three", collapseWhitespace("  one\n\t two \n three  "))
}

func TestLooksLikeObstruction(t *testing.T) {
	assert.True(t, looksLikeObstruction(fmt.Errorf("element click intercepted")))
	assert.True(t, looksLikeObstruction(fmt.Errorf("subtree blocked by overlay")))
	assert.False(t, looksLikeObstruction(fmt.Errorf("no element matches selector")))
}
