package sinks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lightmeter/internal/config"
	"github.com/ztkent/lightmeter/internal/lightmeter"
)

const (
	influxPingTimeout = 5 * time.Second
	influxMeasurement = "light"
)

var ErrInfluxConnect = errors.New("influxdb: connection failed")

// InfluxPublisher writes every recorded reading as a point, batched by the
// non-blocking write API.
type InfluxPublisher struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

var _ lightmeter.Publisher = (*InfluxPublisher)(nil)

func NewInfluxPublisher(cfg config.InfluxDBConfig, l *logrus.Logger) (*InfluxPublisher, error) {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, influxdb2.DefaultOptions().SetBatchSize(20))

	ctx, cancel := context.WithTimeout(context.Background(), influxPingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrInfluxConnect, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrInfluxConnect)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		// closed by client.Close
		for err := range writeAPI.Errors() {
			l.WithError(err).Warn("Failed to write light reading to InfluxDB")
		}
	}()

	return &InfluxPublisher{client: client, writeAPI: writeAPI}, nil
}

func readingPoint(result lightmeter.LuxResults) *write.Point {
	return write.NewPoint(
		influxMeasurement,
		map[string]string{
			"job_id":           result.JobID,
			"integration_time": strconv.Itoa(result.IntegrationTimeMs) + "ms",
		},
		map[string]interface{}{
			"lux":   result.Lux,
			"red":   result.Red,
			"green": result.Green,
			"blue":  result.Blue,
			"white": result.White,
		},
		result.Time,
	)
}

// Publish queues the reading, write errors are reported asynchronously.
func (p *InfluxPublisher) Publish(_ context.Context, result lightmeter.LuxResults) error {
	p.writeAPI.WritePoint(readingPoint(result))
	return nil
}

func (p *InfluxPublisher) Close() error {
	p.writeAPI.Flush()
	p.client.Close()
	return nil
}
