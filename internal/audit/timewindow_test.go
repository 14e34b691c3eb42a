package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseRelative(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{in: "30s", want: 30 * time.Second, ok: true},
		{in: "15m", want: 15 * time.Minute, ok: true},
		{in: "24h", want: 24 * time.Hour, ok: true},
		{in: "7d", want: 7 * 24 * time.Hour, ok: true},
		{in: "2w", want: 14 * 24 * time.Hour, ok: true},
		{in: " 1h ", want: time.Hour, ok: true},
		{in: "1y"},
		{in: "h"},
		{in: "-1h"},
		{in: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRelative(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "RFC3339 with Z",
			in:   "2025-05-31T10:00:00Z",
			want: time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "RFC3339 with offset is converted to UTC",
			in:   "2025-05-31T10:00:00+02:00",
			want: time.Date(2025, 5, 31, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "no zone read as UTC",
			in:   "2025-05-31T10:00:00",
			want: time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "date only",
			in:   "2025-05-31",
			want: time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "relative hours",
			in:   "2h",
			want: testNow.Add(-2 * time.Hour),
		},
		{
			name:    "garbage",
			in:      "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.in, testNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestQueryFilterWindow(t *testing.T) {
	tests := []struct {
		name          string
		filter        QueryFilter
		defaultWindow time.Duration
		wantStart     time.Time
		wantEnd       time.Time
		wantErrField  string
	}{
		{
			name:      "no bounds uses default window",
			filter:    QueryFilter{},
			wantStart: testNow.Add(-DefaultTimeWindow),
			wantEnd:   testNow,
		},
		{
			name:          "no bounds with overridden window",
			filter:        QueryFilter{},
			defaultWindow: time.Hour,
			wantStart:     testNow.Add(-time.Hour),
			wantEnd:       testNow,
		},
		{
			name:      "only end anchors the default window",
			filter:    QueryFilter{EndTime: "2025-05-30T00:00:00Z"},
			wantStart: time.Date(2025, 5, 29, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "relative start",
			filter:    QueryFilter{StartTime: "7d"},
			wantStart: testNow.Add(-7 * 24 * time.Hour),
			wantEnd:   testNow,
		},
		{
			name:         "start after end",
			filter:       QueryFilter{StartTime: "2025-05-31T00:00:00Z", EndTime: "2025-05-30T00:00:00Z"},
			wantErrField: "start_time",
		},
		{
			name:         "invalid end",
			filter:       QueryFilter{EndTime: "soon"},
			wantErrField: "end_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := tt.filter.Window(testNow, tt.defaultWindow)
			if tt.wantErrField != "" {
				var fe *FilterError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, tt.wantErrField, fe.Field)
				assert.ErrorIs(t, err, ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(start), "start: want %s, got %s", tt.wantStart, start)
			assert.True(t, tt.wantEnd.Equal(end), "end: want %s, got %s", tt.wantEnd, end)
		})
	}
}

func TestQueryFilterValidate(t *testing.T) {
	assert.NoError(t, QueryFilter{Limit: 1}.Validate(testNow))
	assert.ErrorIs(t, QueryFilter{Limit: 0}.Validate(testNow), ErrInvalidFilter)
	assert.ErrorIs(t, QueryFilter{Limit: 5, StartTime: "nope"}.Validate(testNow), ErrInvalidFilter)
}
