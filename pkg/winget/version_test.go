package winget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	tests := map[string][]int{
		"1.2.3":        {1, 2, 3},
		"1.2":          {1, 2, 0},
		"v2":           {2, 0, 0},
		"10.0.19041.1": {10, 0, 19041, 1},
		"1.2.3-beta.4": {1, 2, 3, 4},
		"latest":       {0, 0, 0},
		"":             {0, 0, 0},
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseVersion(in), "input %q", in)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.4", -1},
		{"1.10.0", "1.9.9", 1},
		{"2.0", "2.0.0", 0},
		{"1.0.0.1", "1.0.0", 1},
		{"126.0.6478.57", "126.0.6478.127", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestIsNewer(t *testing.T) {
	assert.True(t, IsNewer("1.0.0", "1.1.0"))
	assert.False(t, IsNewer("1.1.0", "1.1.0"))
	assert.False(t, IsNewer("1.1.0", "1.0.9"))
}
