package keeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCronTimeMonthly(t *testing.T) {
	after := time.Date(2026, 8, 15, 12, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeEveryMinute(t *testing.T) {
	after := time.Date(2026, 8, 15, 12, 30, 45, 0, time.UTC)

	next, err := nextCronTime("* * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 15, 12, 31, 0, 0, time.UTC), next)
}

func TestNextCronTimeCommaList(t *testing.T) {
	after := time.Date(2026, 8, 15, 10, 20, 0, 0, time.UTC)

	next, err := nextCronTime("0,30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC), next)
}

func TestNextCronTimeDayOfWeek(t *testing.T) {
	// 2026-08-15 is a Saturday; next Monday is the 17th.
	after := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	next, err := nextCronTime("0 9 * * 1", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 17, 9, 0, 0, 0, time.UTC), next)
}

func TestParseCronRejectsMalformed(t *testing.T) {
	_, err := nextCronTime("0 3 1 *", time.Now())
	assert.Error(t, err)

	_, err = nextCronTime("x 3 1 * *", time.Now())
	assert.Error(t, err)
}
