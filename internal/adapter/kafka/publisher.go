// Package kafka publishes finalized region series to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
	"github.com/couchcryptid/climate-region-etl/internal/observability"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per region of a finalized run.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a producer for topic.
func NewPublisher(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// RegionMessage is the JSON value of a published message. Values are
// aligned with Timesteps; nil marks a missing value.
type RegionMessage struct {
	RunID       string      `json:"run_id"`
	Variable    string      `json:"variable"`
	Country     string      `json:"country"`
	AdmLevel    int         `json:"adm_level"`
	Index       int         `json:"index"`
	Column      string      `json:"column"`
	Name        string      `json:"name"`
	ISO         string      `json:"iso"`
	AreaKm2     float64     `json:"area_km2"`
	CellCount   int         `json:"cell_count"`
	Timesteps   []time.Time `json:"timesteps"`
	Values      []*float64  `json:"values"`
	ProcessedAt time.Time   `json:"processed_at"`
}

// Publish writes every stats row as a message keyed by run and region index.
// Rows whose column was omitted are published with no values.
func (p *Publisher) Publish(ctx context.Context, run domain.RunInfo, ts domain.TimeSeriesTable, stats domain.StatsTable) error {
	if len(stats.Rows) == 0 {
		return nil
	}
	processedAt := domain.Clock().Now().UTC()
	msgs, err := buildMessages(run, ts, stats, processedAt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", run.ID, err)
	}
	p.metrics.MessagesProduced.Add(float64(len(msgs)))
	p.logger.Info("results published", "run_id", run.ID, "messages", len(msgs))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// buildMessages pairs stats rows with table columns, by the column each row
// records or, for rows without that link, positionally over rows that
// produced one.
func buildMessages(run domain.RunInfo, ts domain.TimeSeriesTable, stats domain.StatsTable, processedAt time.Time) ([]kafkago.Message, error) {
	columns := matchColumns(ts, stats)
	msgs := make([]kafkago.Message, 0, len(stats.Rows))
	for i, row := range stats.Rows {
		m := RegionMessage{
			RunID:       run.ID,
			Variable:    run.Variable,
			Country:     run.Country,
			AdmLevel:    run.AdmLevel,
			Index:       row.Index,
			Name:        row.Name,
			ISO:         row.ISOCode,
			AreaKm2:     row.AreaKm2,
			CellCount:   row.CellCount,
			Timesteps:   []time.Time{},
			Values:      []*float64{},
			ProcessedAt: processedAt,
		}
		if col, ok := columns[i]; ok {
			m.Column = col.Name
			m.Timesteps = ts.Timesteps
			m.Values = nullableValues(col.Values)
		}
		msg, err := serializeToMessage(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// matchColumns maps stats row positions to their table column. A row has a
// column when it covered cells, or when empty columns are kept (every row
// then has one).
func matchColumns(ts domain.TimeSeriesTable, stats domain.StatsTable) map[int]domain.Column {
	out := make(map[int]domain.Column, len(ts.Columns))
	if linked(stats) {
		byName := make(map[string]domain.Column, len(ts.Columns))
		for _, c := range ts.Columns {
			byName[c.Name] = c
		}
		for i, row := range stats.Rows {
			if c, ok := byName[row.Column]; ok && row.Column != "" {
				out[i] = c
			}
		}
		return out
	}
	if len(ts.Columns) == len(stats.Rows) {
		for i, c := range ts.Columns {
			out[i] = c
		}
		return out
	}
	next := 0
	for i, row := range stats.Rows {
		if row.CellCount == 0 || next >= len(ts.Columns) {
			continue
		}
		out[i] = ts.Columns[next]
		next++
	}
	return out
}

func linked(stats domain.StatsTable) bool {
	for _, row := range stats.Rows {
		if row.Column != "" {
			return true
		}
	}
	return false
}

func nullableValues(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

// serializeToMessage marshals a RegionMessage into a Kafka message.
func serializeToMessage(m RegionMessage) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize region %d: %w", m.Index, err)
	}
	return kafkago.Message{
		Key:   []byte(m.RunID + "/" + strconv.Itoa(m.Index)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(m.RunID)},
			{Key: "variable", Value: []byte(m.Variable)},
			{Key: "processed_at", Value: []byte(m.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
