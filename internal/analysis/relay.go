package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope/internal/llm"
	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

// DataSource answers one-shot aggregation queries.
type DataSource interface {
	AggregateSales(ctx context.Context, q model.AnalysisQuery) ([]model.AggregateRow, error)
}

type relayState string

const (
	stateAwaitingData relayState = "AWAITING_DATA"
	statePrompting    relayState = "PROMPTING"
	stateStreaming    relayState = "STREAMING"
	stateFinalizing   relayState = "FINALIZING"
	stateClosed       relayState = "CLOSED"
	stateErrored      relayState = "ERRORED"
)

const persistTimeout = 30 * time.Second

// Relay drives one streaming analysis: aggregate query, prompt, provider
// stream, per-delta translation into client events, and a fire-and-forget
// persistence call once the stream finishes. Relay itself holds only
// dependencies; every Run owns its own accumulator state, so one Relay can
// serve concurrent requests.
type Relay struct {
	data           DataSource
	invoker        llm.Invoker
	store          reportstore.Store
	defaultModelID string
	reportTTL      time.Duration
	log            zerolog.Logger
}

// NewRelay wires a Relay. reportTTL of 0 defaults to 72 hours.
func NewRelay(data DataSource, invoker llm.Invoker, store reportstore.Store, defaultModelID string, reportTTL time.Duration, log zerolog.Logger) *Relay {
	if reportTTL == 0 {
		reportTTL = 72 * time.Hour
	}
	return &Relay{
		data:           data,
		invoker:        invoker,
		store:          store,
		defaultModelID: defaultModelID,
		reportTTL:      reportTTL,
		log:            log,
	}
}

// relayRun is the per-request mutable state. Created when Run starts,
// unreachable once Run returns.
type relayRun struct {
	state      relayState
	content    strings.Builder
	reasoning  strings.Builder
	stopReason string
}

// Run executes the full stream lifecycle, delivering client events through
// emit in order. emit is called from this goroutine only. Run returns when
// the stream is closed, errored, or ctx is cancelled; after a cancellation
// nothing further is emitted and nothing is persisted.
func (r *Relay) Run(ctx context.Context, userID string, q model.AnalysisQuery, emit func(any)) {
	run := &relayRun{state: stateAwaitingData}
	log := r.log.With().Str("user", userID).Logger()

	fail := func(err error) {
		log.Error().Err(err).Str("state", string(run.state)).Msg("analysis stream failed")
		run.state = stateErrored
		emit(newErrorEvent(err.Error()))
		run.state = stateClosed
	}

	emit(newThinkingStart())

	rows, err := r.data.AggregateSales(ctx, q)
	if err != nil {
		fail(&DataSourceError{Err: err})
		return
	}
	run.state = statePrompting

	prompt, err := BuildPrompt(rows, q)
	if err != nil {
		fail(err)
		return
	}

	modelID := q.ModelID
	if modelID == "" {
		modelID = r.defaultModelID
	}
	events, err := r.invoker.InvokeStream(ctx, prompt, llm.Options{
		ModelID:        modelID,
		EnableThinking: q.EnableThinking,
	})
	if err != nil {
		fail(err)
		return
	}
	run.state = stateStreaming
	log.Info().Str("model", modelID).Bool("thinking", q.EnableThinking).Msg("provider stream opened")

	for {
		select {
		case <-ctx.Done():
			// Client went away. Discard partial results; the adapter
			// observes the same ctx and tears down the provider stream.
			run.state = stateClosed
			log.Info().Msg("client disconnected mid-stream")
			return
		case ev, ok := <-events:
			if !ok {
				// Channel closed without a stream_end marker; finalize
				// with whatever accumulated.
				r.finalize(run, userID, q, rows, emit, log)
				return
			}
			if ev.Err != nil {
				fail(ev.Err)
				return
			}
			switch ev.Type {
			case llm.EventContentDelta:
				run.content.WriteString(ev.Text)
				emit(newThinkingProgress(ev.Text, false))
			case llm.EventReasoningDelta:
				run.reasoning.WriteString(ev.Text)
				emit(newThinkingProgress(ev.Text, true))
			case llm.EventUsage:
				log.Info().
					Int("input_tokens", ev.Usage.InputTokens).
					Int("output_tokens", ev.Usage.OutputTokens).
					Msg("model usage")
			case llm.EventStreamEnd:
				run.stopReason = ev.StopReason
				r.finalize(run, userID, q, rows, emit, log)
				return
			}
		}
	}
}

// finalize runs the FINALIZING step: thinking_end, extraction, the result
// frame, and an unawaited persistence call.
func (r *Relay) finalize(run *relayRun, userID string, q model.AnalysisQuery, rows []model.AggregateRow, emit func(any), log zerolog.Logger) {
	run.state = stateFinalizing
	emit(newThinkingEnd())

	raw := run.content.String()
	markdown := ExtractOutput(raw)
	emit(newAnalysisResult(markdown, raw))
	run.state = stateClosed

	report := &model.AnalysisReport{
		ReportID:    uuid.NewString(),
		UserID:      userID,
		Status:      model.StatusCompleted,
		QueryParams: &q,
		RawData:     rows,
		Results:     &model.AnalysisResults{MarkdownContent: markdown, RawResponse: raw},
		CreatedAt:   time.Now().UTC(),
	}
	if run.reasoning.Len() > 0 {
		report.ReasoningContent = run.reasoning.String()
	}
	now := report.CreatedAt
	report.CompletedAt = &now
	report.TTL = now.Add(r.reportTTL).Unix()

	log.Info().Str("report", report.ReportID).Str("stop_reason", run.stopReason).Msg("analysis stream finished")

	// The client already has its result; store durability is not part of
	// the request's critical path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.Put(ctx, report); err != nil {
			log.Error().Err(err).Str("report", report.ReportID).Msg("failed to persist streamed report")
		}
	}()
}
