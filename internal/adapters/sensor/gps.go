package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"github.com/samirrijal/proxima/internal/core/domain"
	"github.com/samirrijal/proxima/internal/core/ports"
)

// maxPreciseHDOP is the worst horizontal dilution accepted for high accuracy
// requests.
const maxPreciseHDOP = 2.5

var errNoFix = errors.New("gps stream ended without a valid fix")

// GPS reads GGA sentences from an NMEA receiver on a serial port.
type GPS struct {
	port     string
	baudRate int
	open     func(port string, baud int) (io.ReadCloser, error)
}

// NewGPS creates a GPS sensor for the given serial port.
func NewGPS(port string, baudRate int) *GPS {
	return &GPS{port: port, baudRate: baudRate, open: openSerial}
}

func openSerial(port string, baud int) (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: port, Baud: baud})
}

type gpsResult struct {
	point domain.GeoPoint
	err   error
}

// RequestLocation opens the port and waits for the first usable fix. High
// accuracy requests skip fixes with a poor HDOP.
func (g *GPS) RequestLocation(ctx context.Context, req ports.SensorRequest) (domain.GeoPoint, error) {
	rc, err := g.open(g.port, g.baudRate)
	if err != nil {
		return domain.GeoPoint{}, &domain.LocationError{Code: domain.LocationUnsupported, Err: fmt.Errorf("open %s: %w", g.port, err)}
	}

	done := make(chan gpsResult, 1)
	go func() {
		p, err := readFix(rc, req.HighAccuracy)
		done <- gpsResult{point: p, err: err}
	}()

	select {
	case res := <-done:
		_ = rc.Close()
		if res.err != nil {
			return domain.GeoPoint{}, &domain.LocationError{Code: domain.LocationUnavailable, Err: res.err}
		}
		return res.point, nil
	case <-ctx.Done():
		// Closing the port unblocks the reader.
		_ = rc.Close()
		return domain.GeoPoint{}, ctx.Err()
	}
}

func readFix(r io.Reader, highAccuracy bool) (domain.GeoPoint, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sentence, err := nmea.Parse(scanner.Text())
		if err != nil || sentence.DataType() != nmea.TypeGGA {
			continue
		}
		gga, ok := sentence.(nmea.GGA)
		if !ok || gga.FixQuality == nmea.Invalid {
			continue
		}
		if highAccuracy && gga.HDOP > maxPreciseHDOP {
			continue
		}
		return domain.GeoPoint{Lat: gga.Latitude, Lng: gga.Longitude}, nil
	}
	if err := scanner.Err(); err != nil {
		return domain.GeoPoint{}, err
	}
	return domain.GeoPoint{}, errNoFix
}
