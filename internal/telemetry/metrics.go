package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics.
type Metrics struct {
	RequestCounter       metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	DocumentsProcessed   metric.Int64Counter
	ProcessingDuration   metric.Float64Histogram
	ChunksCreated        metric.Int64Counter
	RelationshipsCreated metric.Int64Counter
	SearchQueries        metric.Int64Counter
}

// InitMetrics registers all application metrics.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("echograph")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentsProcessed, err := meter.Int64Counter(
		"documents.processed.total",
		metric.WithDescription("Documents run through the ingestion pipeline"),
	)
	if err != nil {
		return nil, err
	}

	processingDuration, err := meter.Float64Histogram(
		"documents.processing.duration",
		metric.WithDescription("Ingestion pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksCreated, err := meter.Int64Counter(
		"chunks.created.total",
		metric.WithDescription("Chunk rows persisted"),
	)
	if err != nil {
		return nil, err
	}

	relationshipsCreated, err := meter.Int64Counter(
		"relationships.created.total",
		metric.WithDescription("Auto-detected relationships inserted"),
	)
	if err != nil {
		return nil, err
	}

	searchQueries, err := meter.Int64Counter(
		"search.queries.total",
		metric.WithDescription("Semantic search queries served"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:       requestCounter,
		RequestDuration:      requestDuration,
		DocumentsProcessed:   documentsProcessed,
		ProcessingDuration:   processingDuration,
		ChunksCreated:        chunksCreated,
		RelationshipsCreated: relationshipsCreated,
		SearchQueries:        searchQueries,
	}, nil
}

// RecordRequest records HTTP request metrics.
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordDocumentProcessed records one pipeline run.
func (m *Metrics) RecordDocumentProcessed(status string, duration float64, chunks int64) {
	attrs := []attribute.KeyValue{
		attribute.String("document.status", status),
	}

	m.DocumentsProcessed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.ProcessingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if chunks > 0 {
		m.ChunksCreated.Add(context.Background(), chunks)
	}
}

// RecordRelationshipsCreated records inserted relationship edges.
func (m *Metrics) RecordRelationshipsCreated(n int64) {
	if n > 0 {
		m.RelationshipsCreated.Add(context.Background(), n)
	}
}

// RecordSearchQuery records one search request.
func (m *Metrics) RecordSearchQuery(fallback bool) {
	m.SearchQueries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("search.fallback", fallback),
	))
}
