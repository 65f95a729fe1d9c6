package reaction_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/robalyx/reactor/internal/reaction"
	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	sum := func(s string) string {
		h := sha256.Sum256([]byte(s))
		return hex.EncodeToString(h[:])
	}

	tests := []struct {
		name      string
		ip        string
		userAgent string
		want      string
	}{
		{
			name:      "ip and user agent",
			ip:        "203.0.113.7",
			userAgent: "Mozilla/5.0",
			want:      sum("secret:203.0.113.7:Mozilla/5.0"),
		},
		{
			name:      "missing ip",
			userAgent: "curl/8.0",
			want:      sum("secret:none:curl/8.0"),
		},
		{
			name: "missing both",
			want: sum("secret:none:none"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := reaction.Fingerprint("secret", tt.ip, tt.userAgent)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 64)
		})
	}
}

func TestFingerprintDependsOnSecret(t *testing.T) {
	t.Parallel()

	a := reaction.Fingerprint("one", "198.51.100.1", "ua")
	b := reaction.Fingerprint("two", "198.51.100.1", "ua")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, reaction.Fingerprint("one", "198.51.100.1", "ua"))
}
