package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/subscription-radar/internal/detection"
)

const detectionsTable = "recurring_detections"

// ResultsSink receives detection reports for long-term storage.
type ResultsSink interface {
	// InsertDetections stores every result of report, tagged with source.
	InsertDetections(ctx context.Context, report *detection.Report, source string) error
}

// ResultsRepository exports detection results to BigQuery. It holds a
// shared client; call Close when done.
type ResultsRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

// NewResultsRepository creates a repository writing to projectID.datasetID.
func NewResultsRepository(ctx context.Context, projectID, datasetID string) (*ResultsRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewResultsRepository: creating client: %w", err)
	}
	return &ResultsRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *ResultsRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ResultsRepository) table() *bigquery.Table {
	return r.client.DatasetInProject(r.projectID, r.datasetID).Table(detectionsTable)
}

// InsertDetections streams the report's results into recurring_detections.
// Reports without results are a no-op.
func (r *ResultsRepository) InsertDetections(ctx context.Context, report *detection.Report, source string) error {
	rows := DetectionRowsFromReport(report, source, r.now().UTC())
	if len(rows) == 0 {
		return nil
	}

	if err := r.table().Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertDetections: inserting rows: %w", err)
	}
	return nil
}

// ListDetections reads back the rows exported for one analysis, ordered as
// they were reported (highest last amount first).
func (r *ResultsRepository) ListDetections(ctx context.Context, analysisID string) ([]*DetectionRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT *
		FROM `+"`%s.%s.%s`"+`
		WHERE analysis_id = @analysis_id
		ORDER BY last_amount DESC, unified_name
	`, r.projectID, r.datasetID, detectionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_id", Value: analysisID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDetections: query read: %w", err)
	}

	var rows []*DetectionRow
	for {
		var row DetectionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListDetections: iter next: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

var _ ResultsSink = (*ResultsRepository)(nil)
