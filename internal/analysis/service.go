package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope/internal/llm"
	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

// Service is the buffered analysis lifecycle plus report retrieval. A create
// call registers a PROCESSING report and returns immediately; a background
// worker completes it with a buffered model invocation.
type Service struct {
	data           DataSource
	invoker        llm.Invoker
	store          reportstore.Store
	defaultModelID string
	reportTTL      time.Duration
	log            zerolog.Logger
}

// NewService wires a Service. reportTTL of 0 defaults to 72 hours.
func NewService(data DataSource, invoker llm.Invoker, store reportstore.Store, defaultModelID string, reportTTL time.Duration, log zerolog.Logger) *Service {
	if reportTTL == 0 {
		reportTTL = 72 * time.Hour
	}
	return &Service{
		data:           data,
		invoker:        invoker,
		store:          store,
		defaultModelID: defaultModelID,
		reportTTL:      reportTTL,
		log:            log,
	}
}

// Create registers a new analysis task and starts its completion in the
// background. The returned report is in PROCESSING.
func (s *Service) Create(ctx context.Context, userID string, q model.AnalysisQuery) (*model.AnalysisReport, error) {
	now := time.Now().UTC()
	report := &model.AnalysisReport{
		ReportID:    uuid.NewString(),
		UserID:      userID,
		Status:      model.StatusProcessing,
		QueryParams: &q,
		CreatedAt:   now,
		TTL:         now.Add(s.reportTTL).Unix(),
	}
	if err := s.store.Put(ctx, report); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	go s.complete(report.ReportID, userID, q)
	return report, nil
}

// complete runs the aggregate query and a buffered model invocation, then
// overwrites the report as COMPLETED or ERROR. Runs detached from the
// request that created the task.
func (s *Service) complete(reportID, userID string, q model.AnalysisQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	log := s.log.With().Str("report", reportID).Str("user", userID).Logger()

	markdown, raw, rows, err := s.run(ctx, q)

	report, getErr := s.store.Get(ctx, reportID)
	if getErr != nil {
		log.Error().Err(getErr).Msg("processing report vanished before completion")
		return
	}
	done := time.Now().UTC()
	report.CompletedAt = &done
	if err != nil {
		log.Error().Err(err).Msg("buffered analysis failed")
		report.Status = model.StatusError
		report.ErrorMessage = err.Error()
	} else {
		report.Status = model.StatusCompleted
		report.RawData = rows
		report.Results = &model.AnalysisResults{MarkdownContent: markdown, RawResponse: raw}
	}
	if err := s.store.Put(ctx, report); err != nil {
		log.Error().Err(err).Msg("failed to persist completed report")
		return
	}
	log.Info().Str("status", string(report.Status)).Msg("analysis task finished")
}

func (s *Service) run(ctx context.Context, q model.AnalysisQuery) (markdown, raw string, rows []model.AggregateRow, err error) {
	rows, err = s.data.AggregateSales(ctx, q)
	if err != nil {
		return "", "", nil, &DataSourceError{Err: err}
	}
	prompt, err := BuildPrompt(rows, q)
	if err != nil {
		return "", "", nil, err
	}
	modelID := q.ModelID
	if modelID == "" {
		modelID = s.defaultModelID
	}
	raw, err = s.invoker.Invoke(ctx, prompt, llm.Options{ModelID: modelID, EnableThinking: q.EnableThinking})
	if err != nil {
		return "", "", nil, err
	}
	return ExtractOutput(raw), raw, rows, nil
}

// Get returns a report if the caller owns it or is an admin.
func (s *Service) Get(ctx context.Context, reportID, callerID string, role model.Role) (*model.AnalysisReport, error) {
	report, err := s.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != callerID && role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	return report, nil
}

// History lists the caller's reports, newest first.
func (s *Service) History(ctx context.Context, callerID string) ([]model.AnalysisReport, error) {
	return s.store.ListByUser(ctx, callerID)
}

// Delete removes a report if the caller owns it or is an admin.
func (s *Service) Delete(ctx context.Context, reportID, callerID string, role model.Role) error {
	report, err := s.store.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if report.UserID != callerID && role != model.RoleAdmin {
		return ErrForbidden
	}
	return s.store.Delete(ctx, reportID)
}
