package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodValidate_Bounds(t *testing.T) {
	assert.NoError(t, Period{Year: 2025, Month: 3}.Validate())
	assert.ErrorIs(t, Period{Year: 2025, Month: 0}.Validate(), ErrInvalidPeriod)
	assert.ErrorIs(t, Period{Year: 2025, Month: 13}.Validate(), ErrInvalidPeriod)
	assert.ErrorIs(t, Period{Year: 1999, Month: 6}.Validate(), ErrInvalidPeriod)
	assert.ErrorIs(t, Period{Year: 2101, Month: 6}.Validate(), ErrInvalidPeriod)
}

func TestPeriodBounds_MonthEdges(t *testing.T) {
	p := Period{Year: 2025, Month: 3}
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC), p.End())
	assert.Equal(t, 31, p.Days())

	dec := Period{Year: 2025, Month: 12}
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), dec.End())
	assert.Equal(t, Period{Year: 2026, Month: 1}, dec.Next())
}

func TestPeriodDays_LeapFebruary(t *testing.T) {
	assert.Equal(t, 29, Period{Year: 2024, Month: 2}.Days())
	assert.Equal(t, 28, Period{Year: 2025, Month: 2}.Days())
}

func TestPeriodContains(t *testing.T) {
	p := Period{Year: 2025, Month: 3}
	assert.True(t, p.Contains(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}
