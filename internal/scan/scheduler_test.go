package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scamguard/pkg/logger"
)

func testScheduler(hour, minute int) *Scheduler {
	cfg := testScanConfig()
	cfg.NightlyHour = hour
	cfg.NightlyMinute = minute
	return NewScheduler(cfg, nil, logger.NewDevelopment())
}

func TestNextNightlyLaterToday(t *testing.T) {
	s := testScheduler(2, 30)

	now := time.Date(2026, 8, 25, 1, 0, 0, 0, time.UTC)
	next := s.nextNightly(now)
	assert.Equal(t, time.Date(2026, 8, 25, 2, 30, 0, 0, time.UTC), next)
}

func TestNextNightlyRollsToTomorrow(t *testing.T) {
	s := testScheduler(2, 30)

	now := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	next := s.nextNightly(now)
	assert.Equal(t, time.Date(2026, 8, 26, 2, 30, 0, 0, time.UTC), next)
}

func TestNextNightlyExactTickIsTomorrow(t *testing.T) {
	s := testScheduler(2, 30)

	// Firing at the configured instant must schedule the next day, never
	// an immediate re-fire.
	now := time.Date(2026, 8, 25, 2, 30, 0, 0, time.UTC)
	next := s.nextNightly(now)
	assert.Equal(t, time.Date(2026, 8, 26, 2, 30, 0, 0, time.UTC), next)
}
