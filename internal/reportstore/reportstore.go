// Package reportstore persists analysis reports with a TTL. Two backends
// exist: DynamoDB for deployments and an embedded SQLite file for local
// development.
package reportstore

import (
	"context"
	"errors"

	"github.com/salescope/salescope/internal/model"
)

// ErrNotFound is returned when no live report matches the requested id.
var ErrNotFound = errors.New("report not found")

// Store is the persistence contract shared by both backends. ListByUser
// returns summaries newest first; expired reports are never returned.
type Store interface {
	Put(ctx context.Context, report *model.AnalysisReport) error
	Get(ctx context.Context, reportID string) (*model.AnalysisReport, error)
	ListByUser(ctx context.Context, userID string) ([]model.AnalysisReport, error)
	Delete(ctx context.Context, reportID string) error
}
