package ttl

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCacheControl(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"absent", "", 0},
		{"private", "private, max-age=600", 0},
		{"no-cache", "no-cache", 0},
		{"unrecognized directive", "unknown", 0},
		{"max-age", "max-age=120", 120},
		{"s-maxage takes precedence", "max-age=60, s-maxage=900", 900},
		{"s-maxage alone", "s-maxage=3600", 3600},
		{"zero max-age", "max-age=0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCacheControl(tt.value))
		})
	}
}

func TestIsCacheableResponse(t *testing.T) {
	h := make(http.Header)
	assert.True(t, IsCacheableResponse(200, h))

	h.Set("Set-Cookie", "a=b")
	assert.False(t, IsCacheableResponse(200, h))

	h2 := make(http.Header)
	h2.Set("Cache-Control", "no-store")
	assert.False(t, IsCacheableResponse(200, h2))

	assert.False(t, IsCacheableResponse(500, make(http.Header)))
}
