package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperatingHours(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []int
		wantErr bool
	}{
		{
			name: "default range stops at midnight",
			spec: "6-24",
			want: []int{6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23},
		},
		{
			name: "full day",
			spec: "0-24",
			want: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23},
		},
		{
			name: "comma list",
			spec: "0,6,12,18",
			want: []int{0, 6, 12, 18},
		},
		{
			name: "mixed list and range",
			spec: "1, 9-11",
			want: []int{1, 9, 10, 11},
		},
		{
			name: "empty disables the gate",
			spec: "",
			want: nil,
		},
		{name: "out of range", spec: "25", wantErr: true},
		{name: "bare 24 is only a range end", spec: "24", wantErr: true},
		{name: "reversed range", spec: "18-6", wantErr: true},
		{name: "garbage", spec: "morning", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours, err := ParseOperatingHours(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			var got []int
			for h := 0; h < 24; h++ {
				if hours[h] {
					got = append(got, h)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInOperatingWindow(t *testing.T) {
	hours, err := ParseOperatingHours("9-17")
	require.NoError(t, err)
	cfg := &Config{operatingHours: hours}

	inside := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	outside := time.Date(2025, 3, 10, 3, 0, 0, 0, time.Local)
	assert.True(t, cfg.InOperatingWindow(inside))
	assert.False(t, cfg.InOperatingWindow(outside))

	// No configured hours means the gate is off
	open := &Config{}
	assert.True(t, open.InOperatingWindow(outside))

	// The default window never runs in the small hours
	def, err := ParseOperatingHours("6-24")
	require.NoError(t, err)
	night := &Config{operatingHours: def}
	assert.False(t, night.InOperatingWindow(time.Date(2025, 3, 10, 0, 30, 0, 0, time.Local)))
	assert.True(t, night.InOperatingWindow(time.Date(2025, 3, 10, 23, 30, 0, 0, time.Local)))
}

func TestLoad(t *testing.T) {
	setRequired := func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
		t.Setenv("TOKEN_KEY", "fedcba9876543210fedcba9876543210")
		t.Setenv("TASK_AUTH_KEY", "secret")
	}

	t.Run("defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.RetryCount)
		assert.Equal(t, 100, cfg.HistoryKeep)
		assert.Equal(t, time.Hour, cfg.RunInterval)
		assert.Equal(t, 24*time.Hour, cfg.VerifyTokenTTL)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Contains(t, cfg.OperatingHourList(), 6)
	})

	t.Run("short encryption key", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ENCRYPTION_KEY", "tooshort")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
	})

	t.Run("short token key", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TOKEN_KEY", "tooshort")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TOKEN_KEY")
	})

	t.Run("invalid operating hours", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OPERATING_HOURS", "nope")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("negative retry count", func(t *testing.T) {
		setRequired(t)
		t.Setenv("RETRY_COUNT", "-1")

		_, err := Load()
		require.Error(t, err)
	})
}
