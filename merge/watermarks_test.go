package merge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		got, err := ParseTier(tier.String())
		require.NoError(t, err)
		require.Equal(t, tier, got)
	}

	got, err := ParseTier(" FCAST ")
	require.NoError(t, err)
	require.Equal(t, Forecast, got)

	_, err = ParseTier("gfs")
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	require.True(t, URMA.Outranks(RTMA))
	require.True(t, RTMA.Outranks(Forecast))
	require.False(t, Forecast.Outranks(RTMA))
}

func TestAdjustForecast(t *testing.T) {
	step := time.Hour
	tests := []struct {
		name      string
		in        Watermarks
		cutoff    int
		action    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:   "no forecast",
			in:     Watermarks{},
			cutoff: 3,
		},
		{
			name:      "before window",
			in:        Watermarks{FcastStart: hour(4), FcastEnd: hour(9)},
			cutoff:    3,
			wantStart: hour(4),
			wantEnd:   hour(9),
		},
		{
			name:      "inside window",
			in:        Watermarks{FcastStart: hour(1), FcastEnd: hour(6)},
			cutoff:    3,
			action:    AdjustTruncated,
			wantStart: hour(4),
			wantEnd:   hour(6),
		},
		{
			name:      "at window start",
			in:        Watermarks{FcastStart: hour(3), FcastEnd: hour(6)},
			cutoff:    3,
			action:    AdjustTruncated,
			wantStart: hour(4),
			wantEnd:   hour(6),
		},
		{
			name:   "at window end",
			in:     Watermarks{FcastStart: hour(1), FcastEnd: hour(6)},
			cutoff: 6,
			action: AdjustSuperseded,
		},
		{
			name:   "past window",
			in:     Watermarks{FcastStart: hour(1), FcastEnd: hour(6)},
			cutoff: 8,
			action: AdjustSuperseded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.in
			action := adjustForecast(&w, hour(tt.cutoff), step)
			require.Equal(t, tt.action, action)
			require.Equal(t, tt.wantStart, w.FcastStart)
			require.Equal(t, tt.wantEnd, w.FcastEnd)
		})
	}
}

func TestWatermarks_Validate(t *testing.T) {
	tests := []struct {
		name string
		w    Watermarks
		ok   bool
	}{
		{"empty", Watermarks{}, true},
		{"urma behind rtma", Watermarks{URMAEnd: hour(2), RTMAEnd: hour(5), LastObs: hour(5), LastValid: hour(5)}, true},
		{"urma at rtma", Watermarks{URMAEnd: hour(5), RTMAEnd: hour(5), LastObs: hour(5), LastValid: hour(5)}, false},
		{"forecast after obs", Watermarks{LastObs: hour(5), URMAEnd: hour(5), FcastStart: hour(6), FcastEnd: hour(9), LastValid: hour(9)}, true},
		{"forecast overlaps obs", Watermarks{LastObs: hour(5), RTMAEnd: hour(5), FcastStart: hour(5), FcastEnd: hour(9), LastValid: hour(9)}, false},
		{"half forecast", Watermarks{FcastStart: hour(6)}, false},
		{"inverted forecast", Watermarks{FcastStart: hour(6), FcastEnd: hour(4), LastValid: hour(6)}, false},
		{"stale last valid", Watermarks{LastObs: hour(5), URMAEnd: hour(5), FcastStart: hour(6), FcastEnd: hour(9), LastValid: hour(7)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, errs.ErrInvariant)
			}
		})
	}
}

func TestEventJSON(t *testing.T) {
	e := Event{
		Dataset:    "t2m",
		Tier:       RTMA,
		Start:      hour(0),
		End:        hour(2),
		Steps:      3,
		Watermarks: Watermarks{RTMAEnd: hour(2), LastObs: hour(2), LastValid: hour(2)},
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)
	require.Contains(t, string(b), `"tier":"rtma"`)
	require.Contains(t, string(b), `"rtma_end_time":"2020-01-05T02:00:00Z"`)
	require.NotContains(t, string(b), "urma_end_time")
	require.NotContains(t, string(b), "forecast_adjustment")

	var back Event
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, RTMA, back.Tier)
	require.True(t, back.Watermarks.RTMAEnd.Equal(hour(2)))
}
