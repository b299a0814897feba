package sensor

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

const nmeaStream = `$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A
$GPGGA,123520,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*74
garbage line
$GNGGA,123521,3355.200,S,01824.000,E,1,04,6.5,10.0,M,32.0,M,,*7D
$GNGGA,123522,3355.260,S,01825.200,E,2,11,0.8,10.0,M,32.0,M,,*77
`

func streamGPS(data string) *GPS {
	g := NewGPS("/dev/null", 9600)
	g.open = func(string, int) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(data)), nil
	}
	return g
}

func TestGPS_FirstValidFix(t *testing.T) {
	p, err := streamGPS(nmeaStream).RequestLocation(context.Background(), ports.SensorRequest{})

	require.NoError(t, err)
	assert.InDelta(t, -33.92, p.Lat, 1e-6)
	assert.InDelta(t, 18.4, p.Lng, 1e-6)
}

func TestGPS_HighAccuracySkipsPoorHDOP(t *testing.T) {
	p, err := streamGPS(nmeaStream).RequestLocation(context.Background(), ports.SensorRequest{HighAccuracy: true})

	require.NoError(t, err)
	assert.InDelta(t, -33.921, p.Lat, 1e-6)
	assert.InDelta(t, 18.42, p.Lng, 1e-6)
}

func TestGPS_NoFix(t *testing.T) {
	_, err := streamGPS("$GPGGA,123520,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*74\n").
		RequestLocation(context.Background(), ports.SensorRequest{})

	assert.ErrorIs(t, err, domain.ErrLocationUnavailable)
}

func TestGPS_OpenFailure(t *testing.T) {
	g := NewGPS("/dev/ttyMissing", 9600)
	g.open = func(string, int) (io.ReadCloser, error) { return nil, errors.New("no such device") }

	_, err := g.RequestLocation(context.Background(), ports.SensorRequest{})

	assert.ErrorIs(t, err, domain.ErrLocationUnsupported)
}

func TestGPS_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	g := NewGPS("/dev/ttyUSB0", 9600)
	g.open = func(string, int) (io.ReadCloser, error) { return pr, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.RequestLocation(ctx, ports.SensorRequest{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFixed(t *testing.T) {
	p, err := NewFixed(-1.29, 36.82).RequestLocation(context.Background(), ports.SensorRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.GeoPoint{Lat: -1.29, Lng: 36.82}, p)

	_, err = NewFixed(0, 500).RequestLocation(context.Background(), ports.SensorRequest{})
	assert.ErrorIs(t, err, domain.ErrLocationUnsupported)
}
