package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 100, ClampPercent(137))
	assert.Equal(t, 0, ClampPercent(-5))
	assert.Equal(t, 0, ClampPercent(0))
	assert.Equal(t, 100, ClampPercent(100))
	assert.Equal(t, 42, ClampPercent(42))
}

func TestParseDailyState(t *testing.T) {
	t.Run("legacy widget payload", func(t *testing.T) {
		d, err := ParseDailyState([]byte(`{"percent":42,"hasGoal":true,"ts":1704153600000,"day":"2024-01-01"}`))
		require.NoError(t, err)
		assert.Equal(t, 42, d.Percent)
		assert.True(t, d.HasGoal)
		assert.Equal(t, "2024-01-01", d.Day)
		assert.True(t, d.HasValidDay())
		assert.Equal(t, int64(1704153600000), d.Timestamp().UnixMilli())
	})

	t.Run("payload without day", func(t *testing.T) {
		d, err := ParseDailyState([]byte(`{"percent":10,"hasGoal":true,"ts":1}`))
		require.NoError(t, err)
		assert.False(t, d.HasValidDay())
		assert.True(t, d.HasGoal)
	})

	t.Run("unparsable day", func(t *testing.T) {
		d, err := ParseDailyState([]byte(`{"day":"yesterday"}`))
		require.NoError(t, err)
		assert.False(t, d.HasValidDay())
	})

	t.Run("float and out of range percent", func(t *testing.T) {
		d, err := ParseDailyState([]byte(`{"percent":250.7}`))
		require.NoError(t, err)
		assert.Equal(t, 100, d.Percent)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := ParseDailyState([]byte(`[1,2]`))
		require.Error(t, err)
	})
}

func TestNewDailyState(t *testing.T) {
	at := time.Date(2024, 1, 2, 0, 0, 5, 0, time.UTC)
	d := NewDailyState(-5, false, "2024-01-02", at)
	assert.Equal(t, 0, d.Percent)
	assert.Equal(t, at.UnixMilli(), d.TS)
}
