package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAndPad(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "Big Bu...", TruncateString("Big Buck Bunny", 9))
	assert.Equal(t, "Ünï...", TruncateString("Ünïcode title", 6))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))

	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "   ab", PadLeft("ab", 5))
	assert.Equal(t, "ab...", PadRight("abcdefgh", 5))
}

func TestHealthBar(t *testing.T) {
	s := NewStyles(DefaultPalette())
	bar := s.HealthBar(50, 4)
	assert.Contains(t, bar, "██")
	assert.Contains(t, bar, "░░")
}
