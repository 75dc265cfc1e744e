package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_AcceptedFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"slash date", "2025/03/16", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"slash date with time", "2025/03/16 14:30:00", time.Date(2025, 3, 16, 14, 30, 0, 0, time.UTC)},
		{"dash date", "2025-03-16", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"dash date with time", "2025-03-16 14:30:00", time.Date(2025, 3, 16, 14, 30, 0, 0, time.UTC)},
		{"unpadded slash date", "2025/3/6", time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC)},
		{"surrounding whitespace", "  2025/03/16  ", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestParseDate_Unparseable(t *testing.T) {
	for _, input := range []string{"", "not-a-date", "16/03/2025", "2025/13/40"} {
		_, err := ParseDate(input)
		assert.ErrorIs(t, err, ErrUnparseableDate, "input %q", input)
	}
}

func TestParseDateEndOfDay_DateOnlyBillsThroughDay(t *testing.T) {
	got, err := ParseDateEndOfDay("2025/03/28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 28, 23, 59, 59, 0, time.UTC), got)
}

func TestParseDateEndOfDay_ExplicitTimeKept(t *testing.T) {
	got, err := ParseDateEndOfDay("2025/03/28 10:15:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 28, 10, 15, 0, 0, time.UTC), got)
}
