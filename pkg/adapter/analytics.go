package adapter

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spool-learn/interview/pkg/model"
)

// Analytics is the downstream sink that receives interview summaries.
// Submission is best-effort; callers log and continue on failure.
type Analytics interface {
	SubmitSummary(ctx context.Context, summary *model.InterviewSummary) error
}

type analyticsClient struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewAnalytics creates a BigQuery-backed analytics sink that streams one row
// per completed interview into the given dataset table.
func NewAnalytics(ctx context.Context, projectID, dataset, table string) (Analytics, error) {
	if projectID == "" {
		return nil, goerr.New("project ID is required")
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &analyticsClient{
		client:  client,
		dataset: dataset,
		table:   table,
	}, nil
}

func (a *analyticsClient) SubmitSummary(ctx context.Context, summary *model.InterviewSummary) error {
	inserter := a.client.Dataset(a.dataset).Table(a.table).Inserter()

	if err := inserter.Put(ctx, summary); err != nil {
		return goerr.Wrap(err, "failed to insert interview summary",
			goerr.V("session_id", summary.SessionID))
	}

	return nil
}
