package schema

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/googleapis/google-cloud-go-testing/bigquery/bqiface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/api/iterator"
)

var (
	fetchErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookgen_schema_fetch_errors_total",
		Help: "Schema metadata fetches that failed",
	}, []string{
		"kind",
	})
	distinctQueriesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookgen_schema_distinct_value_queries_total",
		Help: "Distinct-value queries run against BigQuery",
	}, []string{
		"table",
	})
)

// BigQuery is an Inspector backed by a live BigQuery client.
type BigQuery struct {
	client bqiface.Client
}

// NewBigQuery returns a BigQuery inspector using the given client.
func NewBigQuery(client bqiface.Client) *BigQuery {
	return &BigQuery{client: client}
}

// TableSchema fetches the schema tree for ref.
func (b *BigQuery) TableSchema(ctx context.Context, ref TableRef) ([]Field, error) {
	md, err := b.metadata(ctx, ref)
	if err != nil {
		fetchErrorsMetric.WithLabelValues("schema").Inc()
		return nil, err
	}
	return FromBigQuery(md.Schema), nil
}

// TableMetadata fetches type and naming metadata for ref.
func (b *BigQuery) TableMetadata(ctx context.Context, ref TableRef) (*TableInfo, error) {
	md, err := b.metadata(ctx, ref)
	if err != nil {
		fetchErrorsMetric.WithLabelValues("metadata").Inc()
		return nil, err
	}
	return &TableInfo{
		Type:         string(md.Type),
		FriendlyName: md.Name,
	}, nil
}

// DistinctValues runs a frequency-ordered DISTINCT query on one column.
func (b *BigQuery) DistinctValues(ctx context.Context, ref TableRef, column string, limit int) ([]bigquery.Value, error) {
	q := b.client.Query(fmt.Sprintf(
		"SELECT DISTINCT %s AS option, COUNT(*) AS n "+
			"FROM `%s` WHERE %s IS NOT NULL "+
			"GROUP BY 1 ORDER BY 2 DESC LIMIT %d",
		column, ref, column, limit))
	it, err := q.Read(ctx)
	if err != nil {
		fetchErrorsMetric.WithLabelValues("distinct_values").Inc()
		return nil, err
	}
	var values []bigquery.Value
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		values = append(values, row["option"])
	}
	distinctQueriesMetric.WithLabelValues(ref.String()).Inc()
	return values, nil
}

func (b *BigQuery) metadata(ctx context.Context, ref TableRef) (*bigquery.TableMetadata, error) {
	table := b.client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
	md, err := table.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", ref, err)
	}
	return md, nil
}
