package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithinFreeLook(t *testing.T) {
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	p := &Policy{FreeLookEndsAt: now.Add(24 * time.Hour)}
	assert.True(t, p.WithinFreeLook(now))

	expired := &Policy{FreeLookEndsAt: now.Add(-24 * time.Hour)}
	assert.False(t, expired.WithinFreeLook(now))

	boundary := &Policy{FreeLookEndsAt: now}
	assert.False(t, boundary.WithinFreeLook(now))
}
