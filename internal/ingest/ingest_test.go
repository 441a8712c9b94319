package ingest

import (
	"testing"
	"time"

	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validTelemetry(now time.Time) Telemetry {
	return Telemetry{
		UAVID:          "uav-1",
		Lat:            12.9,
		Lon:            77.6,
		AltM:           100,
		BatteryPercent: 80,
		GPSFixType:     3,
		SatelliteCount: 8,
		LinkQuality:    90,
		FlightMode:     "AUTO",
		Timestamp:      now,
	}
}

func TestValidateAcceptsWellFormedTelemetry(t *testing.T) {
	now := time.Now()
	err := Validate(validTelemetry(now), now)
	assert.NoError(t, err)
}

func TestValidateRejectsFutureTimestamp(t *testing.T) {
	now := time.Now()
	tm := validTelemetry(now)
	tm.Timestamp = now.Add(time.Second)

	err := Validate(tm, now)
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestValidateAcceptsTimestampOneSecondInThePast(t *testing.T) {
	now := time.Now()
	tm := validTelemetry(now)
	tm.Timestamp = now.Add(-time.Second)

	assert.NoError(t, Validate(tm, now))
}

func TestValidateRejectsStaleTimestamp(t *testing.T) {
	now := time.Now()
	tm := validTelemetry(now)
	tm.Timestamp = now.Add(-2 * time.Hour)

	err := Validate(tm, now)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	now := time.Now()

	cases := []func(*Telemetry){
		func(tm *Telemetry) { tm.UAVID = "" },
		func(tm *Telemetry) { tm.Lat = 91 },
		func(tm *Telemetry) { tm.Lon = -181 },
		func(tm *Telemetry) { tm.AltM = 60000 },
		func(tm *Telemetry) { tm.BatteryPercent = 101 },
		func(tm *Telemetry) { tm.GPSFixType = 7 },
		func(tm *Telemetry) { tm.SatelliteCount = -1 },
		func(tm *Telemetry) { tm.LinkQuality = 101 },
	}
	for i, mutate := range cases {
		tm := validTelemetry(now)
		mutate(&tm)
		assert.Error(t, Validate(tm, now), "case %d", i)
	}
}

func TestRecordAndCheckSignificanceFirstReportIsAlwaysSignificant(t *testing.T) {
	s := New(nil, nil, nil, clock.New(), zap.NewNop())
	significant := s.recordAndCheckSignificance(validTelemetry(time.Now()))
	assert.True(t, significant)
}

func TestRecordAndCheckSignificanceSmallChangeIsNotSignificant(t *testing.T) {
	s := New(nil, nil, nil, clock.New(), zap.NewNop())
	first := validTelemetry(time.Now())
	s.recordAndCheckSignificance(first)

	second := first
	second.Lat += 0.00001
	second.Lon += 0.00001
	significant := s.recordAndCheckSignificance(second)
	assert.False(t, significant)
}

func TestRecordAndCheckSignificanceLargePositionChangeIsSignificant(t *testing.T) {
	s := New(nil, nil, nil, clock.New(), zap.NewNop())
	first := validTelemetry(time.Now())
	s.recordAndCheckSignificance(first)

	second := first
	second.Lat += 0.01
	significant := s.recordAndCheckSignificance(second)
	assert.True(t, significant)
}

func TestRecordAndCheckSignificanceFlightModeChangeIsSignificant(t *testing.T) {
	s := New(nil, nil, nil, clock.New(), zap.NewNop())
	first := validTelemetry(time.Now())
	s.recordAndCheckSignificance(first)

	second := first
	second.FlightMode = "RTL"
	significant := s.recordAndCheckSignificance(second)
	assert.True(t, significant)
}

func TestRecordAndCheckSignificanceBatteryDropIsSignificant(t *testing.T) {
	s := New(nil, nil, nil, clock.New(), zap.NewNop())
	first := validTelemetry(time.Now())
	s.recordAndCheckSignificance(first)

	second := first
	second.BatteryPercent -= 5
	significant := s.recordAndCheckSignificance(second)
	assert.True(t, significant)
}
