// Package dynamo stores analysis reports in a DynamoDB table keyed by
// reportId, with a userId GSI for history listings and native TTL expiry.
package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

const userIndex = "userId-index"

// API is the slice of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store implements reportstore.Store on a DynamoDB table.
type Store struct {
	client API
	table  string
	now    func() time.Time
}

// New creates a Store for the given table.
func New(client API, table string) *Store {
	return &Store{client: client, table: table, now: time.Now}
}

var _ reportstore.Store = (*Store)(nil)

// record is the item shape. Structured fields travel as JSON strings so the
// table stays queryable with plain string attributes.
type record struct {
	ReportID         string `dynamodbav:"reportId"`
	UserID           string `dynamodbav:"userId"`
	Status           string `dynamodbav:"status"`
	QueryParams      string `dynamodbav:"queryParams,omitempty"`
	RawData          string `dynamodbav:"rawData,omitempty"`
	AnalysisResults  string `dynamodbav:"analysisResults,omitempty"`
	ReasoningContent string `dynamodbav:"reasoningContent,omitempty"`
	ErrorMessage     string `dynamodbav:"errorMessage,omitempty"`
	CreatedAt        string `dynamodbav:"createdAt"`
	CompletedAt      string `dynamodbav:"completedAt,omitempty"`
	TTL              int64  `dynamodbav:"ttl"`
}

func toRecord(r *model.AnalysisReport) (*record, error) {
	rec := &record{
		ReportID:         r.ReportID,
		UserID:           r.UserID,
		Status:           string(r.Status),
		ReasoningContent: r.ReasoningContent,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
		TTL:              r.TTL,
	}
	if r.CompletedAt != nil {
		rec.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	if r.QueryParams != nil {
		data, err := json.Marshal(r.QueryParams)
		if err != nil {
			return nil, fmt.Errorf("encode queryParams: %w", err)
		}
		rec.QueryParams = string(data)
	}
	if len(r.RawData) > 0 {
		data, err := json.Marshal(r.RawData)
		if err != nil {
			return nil, fmt.Errorf("encode rawData: %w", err)
		}
		rec.RawData = string(data)
	}
	if r.Results != nil {
		data, err := json.Marshal(r.Results)
		if err != nil {
			return nil, fmt.Errorf("encode analysisResults: %w", err)
		}
		rec.AnalysisResults = string(data)
	}
	return rec, nil
}

func fromRecord(rec *record) (*model.AnalysisReport, error) {
	r := &model.AnalysisReport{
		ReportID:         rec.ReportID,
		UserID:           rec.UserID,
		Status:           model.ReportStatus(rec.Status),
		ReasoningContent: rec.ReasoningContent,
		ErrorMessage:     rec.ErrorMessage,
		TTL:              rec.TTL,
	}
	if rec.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse createdAt: %w", err)
		}
		r.CreatedAt = t
	}
	if rec.CompletedAt != "" {
		t, err := time.Parse(time.RFC3339, rec.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("parse completedAt: %w", err)
		}
		r.CompletedAt = &t
	}
	if rec.QueryParams != "" {
		if err := json.Unmarshal([]byte(rec.QueryParams), &r.QueryParams); err != nil {
			return nil, fmt.Errorf("decode queryParams: %w", err)
		}
	}
	if rec.RawData != "" {
		if err := json.Unmarshal([]byte(rec.RawData), &r.RawData); err != nil {
			return nil, fmt.Errorf("decode rawData: %w", err)
		}
	}
	if rec.AnalysisResults != "" {
		if err := json.Unmarshal([]byte(rec.AnalysisResults), &r.Results); err != nil {
			return nil, fmt.Errorf("decode analysisResults: %w", err)
		}
	}
	return r, nil
}

// Put writes or replaces a report.
func (s *Store) Put(ctx context.Context, report *model.AnalysisReport) error {
	rec, err := toRecord(report)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal report item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put report %s: %w", report.ReportID, err)
	}
	return nil
}

// Get fetches a report by id. Items past their TTL are treated as absent
// even if DynamoDB has not collected them yet.
func (s *Store) Get(ctx context.Context, reportID string) (*model.AnalysisReport, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"reportId": &ddbtypes.AttributeValueMemberS{Value: reportID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	if out.Item == nil {
		return nil, reportstore.ErrNotFound
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal report item: %w", err)
	}
	if rec.TTL > 0 && rec.TTL <= s.now().Unix() {
		return nil, reportstore.ErrNotFound
	}
	return fromRecord(&rec)
}

// ListByUser queries the userId GSI and returns live reports newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.AnalysisReport, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(userIndex),
		KeyConditionExpression: aws.String("userId = :uid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":uid": &ddbtypes.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query reports for user %s: %w", userID, err)
	}
	nowUnix := s.now().Unix()
	reports := make([]model.AnalysisReport, 0, len(out.Items))
	for _, item := range out.Items {
		var rec record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal report item: %w", err)
		}
		if rec.TTL > 0 && rec.TTL <= nowUnix {
			continue
		}
		r, err := fromRecord(&rec)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// Delete removes a report. Deleting an absent report is not an error.
func (s *Store) Delete(ctx context.Context, reportID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"reportId": &ddbtypes.AttributeValueMemberS{Value: reportID},
		},
	}); err != nil {
		return fmt.Errorf("delete report %s: %w", reportID, err)
	}
	return nil
}
