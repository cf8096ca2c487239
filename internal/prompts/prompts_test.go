package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlideExplanation(t *testing.T) {
	p := SlideExplanation("  Newton's second law: F = ma \n")
	assert.Contains(t, p, "The text of the slide:\nNewton's second law: F = ma\n")
	assert.True(t, strings.HasSuffix(p, "(6 - 7 sentences):"))
}

func TestPartError(t *testing.T) {
	assert.Equal(t, "An error occurred during processing this part: rate limited", PartError(errors.New("rate limited")))
}
