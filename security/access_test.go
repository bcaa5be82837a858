package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuspiciousUserAgent(t *testing.T) {
	suspicious := []string{
		"",
		"curl/8.4.0",
		"python-requests/2.31",
		"Googlebot/2.1",
		"my-crawler 1.0",
		"WebSpider",
	}
	for _, ua := range suspicious {
		assert.Truef(t, SuspiciousUserAgent(ua), "user agent %q", ua)
	}

	legit := []string{
		"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/126.0",
	}
	for _, ua := range legit {
		assert.Falsef(t, SuspiciousUserAgent(ua), "user agent %q", ua)
	}
}
