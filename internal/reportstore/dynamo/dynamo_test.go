package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

// fakeAPI keeps items in memory keyed by reportId and serves the userId GSI
// query with a scan.
type fakeAPI struct {
	items map[string]map[string]ddbtypes.AttributeValue
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: map[string]map[string]ddbtypes.AttributeValue{}}
}

func itemKey(item map[string]ddbtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeAPI) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[itemKey(params.Item, "reportId")] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item := f.items[itemKey(params.Key, "reportId")]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeAPI) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	uid, ok := params.ExpressionAttributeValues[":uid"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing :uid")
	}
	out := &dynamodb.QueryOutput{}
	for _, item := range f.items {
		if itemKey(item, "userId") == uid.Value {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, itemKey(params.Key, "reportId"))
	return &dynamodb.DeleteItemOutput{}, nil
}

func sampleReport(id, userID string) *model.AnalysisReport {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.AnalysisReport{
		ReportID: id,
		UserID:   userID,
		Status:   model.StatusCompleted,
		QueryParams: &model.AnalysisQuery{
			TimeRange:  model.TimeRange{Start: "2025-01-01", End: "2025-01-31"},
			Dimensions: []string{model.DimensionCategory},
			Metrics:    []string{model.MetricSales},
		},
		RawData:   []model.AggregateRow{{"category_name": "Books", "total_sales": 99.5}},
		Results:   &model.AnalysisResults{MarkdownContent: "## Findings", RawResponse: "raw"},
		CreatedAt: now,
		TTL:       now.Add(72 * time.Hour).Unix(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := New(newFakeAPI(), "SalesAnalysisResults")
	ctx := context.Background()

	want := sampleReport("r-1", "7")
	require.NoError(t, store.Put(ctx, want))

	got, err := store.Get(ctx, "r-1")
	require.NoError(t, err)
	require.Equal(t, "7", got.UserID)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.QueryParams)
	require.Equal(t, model.DimensionCategory, got.QueryParams.Dimensions[0])
	require.Len(t, got.RawData, 1)
	require.Equal(t, "Books", got.RawData[0]["category_name"])
	require.NotNil(t, got.Results)
	require.Equal(t, "## Findings", got.Results.MarkdownContent)
	require.True(t, got.CreatedAt.Equal(want.CreatedAt), "createdAt drifted: %v != %v", got.CreatedAt, want.CreatedAt)
}

func TestGetMissing(t *testing.T) {
	store := New(newFakeAPI(), "SalesAnalysisResults")
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, reportstore.ErrNotFound)
}

func TestExpiredItemHidden(t *testing.T) {
	store := New(newFakeAPI(), "SalesAnalysisResults")
	ctx := context.Background()

	report := sampleReport("r-2", "7")
	report.TTL = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, store.Put(ctx, report))

	_, err := store.Get(ctx, "r-2")
	require.ErrorIs(t, err, reportstore.ErrNotFound)

	list, err := store.ListByUser(ctx, "7")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListByUserSorted(t *testing.T) {
	store := New(newFakeAPI(), "SalesAnalysisResults")
	ctx := context.Background()

	older := sampleReport("r-old", "7")
	older.CreatedAt = older.CreatedAt.Add(-3 * time.Hour)
	newer := sampleReport("r-new", "7")
	other := sampleReport("r-other", "8")
	for _, r := range []*model.AnalysisReport{older, newer, other} {
		require.NoError(t, store.Put(ctx, r))
	}

	list, err := store.ListByUser(ctx, "7")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "r-new", list[0].ReportID)
	require.Equal(t, "r-old", list[1].ReportID)
}

func TestDeleteIdempotent(t *testing.T) {
	store := New(newFakeAPI(), "SalesAnalysisResults")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleReport("r-3", "7")))
	require.NoError(t, store.Delete(ctx, "r-3"))
	require.NoError(t, store.Delete(ctx, "r-3"))
}
