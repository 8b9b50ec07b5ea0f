package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/wavematch/core/metrics"
	"github.com/kilianp07/wavematch/infra/logger"
)

// InfluxConfig holds the connection settings of the Influx sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes matching events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordWave writes one point per wave and group.
func (s *InfluxSink) RecordWave(rec coremetrics.WaveRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("wave_dispatched").
		AddTag("opportunity_id", rec.OpportunityID).
		AddTag("wave", strconv.Itoa(rec.Wave)).
		AddTag("component", "dispatcher").
		AddField("offers", rec.Offers).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		SetTime(rec.Time)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return err
	}
	for g, n := range rec.Groups {
		gp := write.NewPointWithMeasurement("wave_group_offers").
			AddTag("opportunity_id", rec.OpportunityID).
			AddTag("group", g).
			AddField("offers", n).
			SetTime(rec.Time)
		if err := s.writeAPI.WritePoint(ctx, gp); err != nil {
			return err
		}
	}
	return nil
}

// RecordOffer writes an offer transition.
func (s *InfluxSink) RecordOffer(rec coremetrics.OfferRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("offer_transition").
		AddTag("opportunity_id", rec.OpportunityID).
		AddTag("candidate_id", rec.CandidateID).
		AddTag("from", string(rec.From)).
		AddTag("to", string(rec.To)).
		AddTag("reason", rec.Reason)
	if rec.Group != "" {
		p = p.AddTag("group", rec.Group)
	}
	p = p.AddField("wave", rec.Wave).
		AddField("latency_s", round3(rec.Latency.Seconds())).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordEscalation writes the matched reasons.
func (s *InfluxSink) RecordEscalation(rec coremetrics.EscalationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("escalation").
		AddTag("opportunity_id", rec.OpportunityID).
		AddField("reasons", strings.Join(rec.Reasons, ",")).
		AddField("count", len(rec.Reasons)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSweep writes a sweep summary.
func (s *InfluxSink) RecordSweep(rec coremetrics.SweepRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("sweep").
		AddTag("component", "sweeper").
		AddField("expired", rec.Expired).
		AddField("conflicts", rec.Conflict).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
