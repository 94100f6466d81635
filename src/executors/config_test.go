package executors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// With the loop at 1s, a cache TTL shorter than the cooldown would leave
// ticks between cache expiry and cooldown expiry permanently unverified.
func TestDefaultVerifyCacheCoversCooldown(t *testing.T) {
	cfg := GetConfig()

	assert.Greater(t, cfg.VerifyCacheTTL, cfg.VerifyCooldown,
		"cached value must stay servable through the whole cooldown window")
}
