package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Generate(t *testing.T) {
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		template      Template
		expectedCount int
		expectErr     bool
	}{
		{
			name:          "full day with break",
			template:      Template{StartTime: "08:00", EndTime: "16:00", BreakStart: "12:00", BreakEnd: "13:00", SlotDuration: 30},
			expectedCount: 14,
		},
		{
			name:          "remainder dropped",
			template:      Template{StartTime: "08:00", EndTime: "09:45", SlotDuration: 30},
			expectedCount: 3,
		},
		{
			name:      "zero duration",
			template:  Template{StartTime: "08:00", EndTime: "09:00"},
			expectErr: true,
		},
		{
			name:      "end before start",
			template:  Template{StartTime: "10:00", EndTime: "09:00", SlotDuration: 15},
			expectErr: true,
		},
		{
			name:      "bad minute",
			template:  Template{StartTime: "08:75", EndTime: "09:00", SlotDuration: 15},
			expectErr: true,
		},
		{
			name:      "slot longer than day",
			template:  Template{StartTime: "08:00", EndTime: "08:20", SlotDuration: 30},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := tt.template.Generate(date)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, slots, tt.expectedCount)
			for i := 1; i < len(slots); i++ {
				assert.False(t, slots[i].StartTime.Before(slots[i-1].EndTime))
			}
		})
	}
}

func TestParseTimeOnDate(t *testing.T) {
	date := time.Date(2025, 1, 10, 22, 0, 0, 0, time.FixedZone("X", -5*3600))
	got, err := parseTimeOnDate(date, "07:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 11, 7, 15, 0, 0, time.UTC), got)

	_, err = parseTimeOnDate(date, "7")
	assert.Error(t, err)
}
