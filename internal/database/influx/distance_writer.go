package influx

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/models"
)

// DistanceWriter exports merged distances and ranging failures as time
// series points. It is a write-only telemetry sink; the workflow never
// reads anything back from it.
type DistanceWriter struct {
	writeAPI api.WriteAPI
	logger   zerolog.Logger
}

func NewDistanceWriter(writeAPI api.WriteAPI, logger zerolog.Logger) *DistanceWriter {
	return &DistanceWriter{
		writeAPI: writeAPI,
		logger:   logger,
	}
}

// WriteDistances exports one point per entry that carries a distance.
func (w *DistanceWriter) WriteDistances(ctx context.Context, entries []models.DisplayEntry) error {
	timestamp := time.Now()
	written := 0

	for _, entry := range entries {
		if !entry.HasDistance() {
			continue
		}

		tags := map[string]string{
			"bssid": entry.BSSID,
		}
		if entry.SSID != "" {
			tags["ssid"] = entry.SSID
		}

		fields := map[string]interface{}{
			"distance_meters":         *entry.DistanceMeters,
			"distance_std_dev_meters": *entry.DistanceStdDevMeters,
			"signal_level":            entry.SignalLevel,
		}

		point := influxdb2.NewPoint(
			"rtt_distance",
			tags,
			fields,
			timestamp,
		)

		w.writeAPI.WritePoint(point)
		written++
	}

	w.logger.Debug().
		Int("points", written).
		Msg("Added distance measurements to InfluxDB")

	return nil
}

// WriteFailure exports one point for a failed ranging request.
func (w *DistanceWriter) WriteFailure(ctx context.Context, code int) error {
	point := influxdb2.NewPoint(
		"rtt_ranging_failure",
		map[string]string{},
		map[string]interface{}{
			"code": code,
		},
		time.Now(),
	)

	w.writeAPI.WritePoint(point)

	w.logger.Debug().
		Int("code", code).
		Msg("Added ranging failure to InfluxDB")

	return nil
}
