package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"
)

// BedrockAPI is the slice of the Bedrock runtime client the invoker uses.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockConfig sets token budgets shared by all invocations.
type BedrockConfig struct {
	MaxTokens      int
	ThinkingBudget int
}

// Bedrock invokes models hosted on Amazon Bedrock and normalizes each
// family's wire format into Events.
type Bedrock struct {
	client         BedrockAPI
	catalog        *Catalog
	maxTokens      int
	thinkingBudget int
	log            zerolog.Logger
}

// NewBedrock creates a Bedrock invoker. Zero budget fields fall back to
// 4096 output tokens and a 2048-token thinking budget.
func NewBedrock(client BedrockAPI, catalog *Catalog, cfg BedrockConfig, log zerolog.Logger) *Bedrock {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.ThinkingBudget <= 0 {
		cfg.ThinkingBudget = 2048
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Bedrock{
		client:         client,
		catalog:        catalog,
		maxTokens:      cfg.MaxTokens,
		thinkingBudget: cfg.ThinkingBudget,
		log:            log,
	}
}

var _ Invoker = (*Bedrock)(nil)

// Invoke runs a buffered invocation and returns the full answer text.
func (b *Bedrock) Invoke(ctx context.Context, prompt string, opts Options) (string, error) {
	caps := b.catalog.Resolve(opts.ModelID)
	body, err := b.buildBody(caps, prompt, opts)
	if err != nil {
		return "", &InvocationError{ModelID: opts.ModelID, Err: err}
	}
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(opts.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", &InvocationError{ModelID: opts.ModelID, Err: err}
	}
	text, err := parseBufferedResponse(caps.Family, out.Body)
	if err != nil {
		return "", &InvocationError{ModelID: opts.ModelID, Err: err}
	}
	return text, nil
}

// InvokeStream runs a streaming invocation. For families without streaming
// support it falls back to a buffered call and synthesizes a two-event
// stream.
func (b *Bedrock) InvokeStream(ctx context.Context, prompt string, opts Options) (<-chan Event, error) {
	caps := b.catalog.Resolve(opts.ModelID)
	if !caps.Streaming {
		return b.synthesizeStream(ctx, prompt, opts)
	}
	body, err := b.buildBody(caps, prompt, opts)
	if err != nil {
		return nil, &InvocationError{ModelID: opts.ModelID, Err: err}
	}
	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(opts.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &InvocationError{ModelID: opts.ModelID, Err: err}
	}

	ch := make(chan Event, 16)
	go b.pumpStream(ctx, out, caps.Family, opts.ModelID, ch)
	return ch, nil
}

func (b *Bedrock) pumpStream(ctx context.Context, out *bedrockruntime.InvokeModelWithResponseStreamOutput, family Family, modelID string, ch chan<- Event) {
	defer close(ch)
	stream := out.GetStream()
	defer stream.Close()

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	stopReason := ""
	for raw := range stream.Events() {
		chunk, ok := raw.(*brtypes.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		events, stop, done, err := parseStreamChunk(family, chunk.Value.Bytes)
		if err != nil {
			b.log.Warn().Err(err).Str("model", modelID).Msg("skipping malformed stream chunk")
			continue
		}
		if stop != "" {
			stopReason = stop
		}
		for _, ev := range events {
			if !send(ev) {
				return
			}
		}
		if done {
			send(Event{Type: EventStreamEnd, StopReason: stopReason})
			return
		}
	}
	if err := stream.Err(); err != nil {
		send(Event{Err: &InvocationError{ModelID: modelID, Err: err}})
		return
	}
	// Provider closed the stream without a terminal marker. Treat it as a
	// normal end so downstream consumers still finalize.
	send(Event{Type: EventStreamEnd, StopReason: stopReason})
}

func (b *Bedrock) synthesizeStream(ctx context.Context, prompt string, opts Options) (<-chan Event, error) {
	text, err := b.Invoke(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan Event, 2)
	ch <- Event{Type: EventContentDelta, Text: text}
	ch <- Event{Type: EventStreamEnd, StopReason: "end_turn"}
	close(ch)
	return ch, nil
}

func (b *Bedrock) buildBody(caps Capability, prompt string, opts Options) ([]byte, error) {
	switch caps.Family {
	case FamilyClaude:
		return buildClaudeBody(prompt, opts.EnableThinking && caps.ThinkingToggle, b.maxTokens, b.thinkingBudget)
	case FamilyDeepSeek:
		return buildDeepSeekBody(prompt, b.maxTokens+b.thinkingBudget)
	default:
		return buildLegacyBody(prompt, b.maxTokens)
	}
}

type claudeThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	Messages         []claudeMessage `json:"messages"`
	Thinking         *claudeThinking `json:"thinking,omitempty"`
}

// buildClaudeBody builds the messages-API request. With thinking enabled the
// budget is added on top of max_tokens and temperature must be 1.
func buildClaudeBody(prompt string, thinking bool, maxTokens, thinkingBudget int) ([]byte, error) {
	req := claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      0.7,
		Messages: []claudeMessage{{
			Role:    "user",
			Content: []claudeContent{{Type: "text", Text: prompt}},
		}},
	}
	if thinking {
		req.MaxTokens = maxTokens + thinkingBudget
		req.Temperature = 1
		req.Thinking = &claudeThinking{Type: "enabled", BudgetTokens: thinkingBudget}
	}
	return json.Marshal(req)
}

type deepseekRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// buildDeepSeekBody builds the completion-style request. The family always
// reasons, so temperature and the token budget are fixed.
func buildDeepSeekBody(prompt string, maxTokens int) ([]byte, error) {
	return json.Marshal(deepseekRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: 1,
	})
}

type legacyRequest struct {
	Prompt            string  `json:"prompt"`
	MaxTokensToSample int     `json:"max_tokens_to_sample"`
	Temperature       float64 `json:"temperature"`
}

func buildLegacyBody(prompt string, maxTokens int) ([]byte, error) {
	return json.Marshal(legacyRequest{
		Prompt:            fmt.Sprintf("\n\nHuman: %s\n\nAssistant:", prompt),
		MaxTokensToSample: maxTokens,
		Temperature:       0.7,
	})
}

func parseBufferedResponse(family Family, body []byte) (string, error) {
	switch family {
	case FamilyClaude:
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		for _, c := range resp.Content {
			if c.Type == "text" {
				return c.Text, nil
			}
		}
		return "", fmt.Errorf("response contains no text block")
	case FamilyDeepSeek:
		var resp struct {
			Choices []struct {
				Text string `json:"text"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("response contains no choices")
		}
		return resp.Choices[0].Text, nil
	default:
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		return resp.Completion, nil
	}
}

// parseStreamChunk decodes one streamed payload part into normalized events.
// stop carries the provider stop reason once seen; done marks the terminal
// chunk of the stream.
func parseStreamChunk(family Family, data []byte) (events []Event, stop string, done bool, err error) {
	switch family {
	case FamilyDeepSeek:
		return parseDeepSeekChunk(data)
	default:
		return parseClaudeChunk(data)
	}
}

func parseClaudeChunk(data []byte) ([]Event, string, bool, error) {
	var chunk struct {
		Type  string `json:"type"`
		Delta struct {
			Type       string `json:"type"`
			Text       string `json:"text"`
			Thinking   string `json:"thinking"`
			StopReason string `json:"stop_reason"`
		} `json:"delta"`
		Usage *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, "", false, fmt.Errorf("decode chunk: %w", err)
	}
	switch chunk.Type {
	case "content_block_delta":
		switch chunk.Delta.Type {
		case "text_delta":
			if chunk.Delta.Text == "" {
				return nil, "", false, nil
			}
			return []Event{{Type: EventContentDelta, Text: chunk.Delta.Text}}, "", false, nil
		case "thinking_delta":
			if chunk.Delta.Thinking == "" {
				return nil, "", false, nil
			}
			return []Event{{Type: EventReasoningDelta, Text: chunk.Delta.Thinking}}, "", false, nil
		}
		return nil, "", false, nil
	case "message_delta":
		var events []Event
		if chunk.Usage != nil {
			events = append(events, Event{Type: EventUsage, Usage: &Usage{
				InputTokens:  chunk.Usage.InputTokens,
				OutputTokens: chunk.Usage.OutputTokens,
			}})
		}
		return events, chunk.Delta.StopReason, false, nil
	case "message_stop":
		return nil, "", true, nil
	}
	return nil, "", false, nil
}

func parseDeepSeekChunk(data []byte) ([]Event, string, bool, error) {
	var chunk struct {
		Choices []struct {
			Text             string `json:"text"`
			ReasoningContent string `json:"reasoning_content"`
			StopReason       string `json:"stop_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, "", false, fmt.Errorf("decode chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return nil, "", false, nil
	}
	choice := chunk.Choices[0]
	var events []Event
	if choice.ReasoningContent != "" {
		events = append(events, Event{Type: EventReasoningDelta, Text: choice.ReasoningContent})
	}
	if choice.Text != "" {
		events = append(events, Event{Type: EventContentDelta, Text: choice.Text})
	}
	if choice.StopReason != "" {
		return events, choice.StopReason, true, nil
	}
	return events, "", false, nil
}
