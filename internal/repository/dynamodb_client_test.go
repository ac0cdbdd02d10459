package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"chatdesk/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	queryOuts    []*dynamodb.QueryOutput
	queryErr     error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	queryInputs  []dynamodb.QueryInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, *in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := f.queryOuts[0]
	f.queryOuts = f.queryOuts[1:]
	return out, nil
}

var t0 = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func sampleTicket(id string, at time.Time) domain.Ticket {
	t := domain.NewTicket(id, "SUP-"+id, "law", at)
	t.RecordExchange("Vad säger lagen om hyra?", "Hyreslagen reglerar ...", at)
	_, _ = t.AddNote("agent-1", "Ring tillbaka", at)
	return *t
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "table")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestTicketItem_RoundTripsThroughAttributeMap(t *testing.T) {
	in := sampleTicket("abc", t0)
	_, _ = in.SetStatus(domain.TicketStatusSolved, t0.Add(time.Minute))
	in.Assign("agent-7", t0.Add(time.Minute))

	item := ticketItem(in)
	require.Equal(t, "TENANT#law", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "TICKET#abc", item["SK"].(*types.AttributeValueMemberS).Value)

	out, err := itemToTicket(item)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestItemToTicket_OmitsOptionalFields(t *testing.T) {
	in := sampleTicket("abc", t0)
	item := ticketItem(in)
	_, hasAssignee := item["assignedTo"]
	_, hasSolved := item["solvedAt"]
	require.False(t, hasAssignee)
	require.False(t, hasSolved)

	out, err := itemToTicket(item)
	require.NoError(t, err)
	require.Empty(t, out.AssignedTo)
	require.Nil(t, out.SolvedAt)
}

func TestItemToTicket_Malformed(t *testing.T) {
	item := ticketItem(sampleTicket("abc", t0))
	item["createdAt"] = &types.AttributeValueMemberS{Value: "yesterday"}
	_, err := itemToTicket(item)
	require.ErrorContains(t, err, "createdAt")

	item = ticketItem(sampleTicket("abc", t0))
	item["messages"] = &types.AttributeValueMemberS{Value: "[]"}
	_, err = itemToTicket(item)
	require.ErrorContains(t, err, "not a list")

	item = ticketItem(sampleTicket("abc", t0))
	delete(item, "status")
	_, err = itemToTicket(item)
	require.ErrorContains(t, err, "status")
}

func TestGet_HappyPath(t *testing.T) {
	want := sampleTicket("abc", t0)
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: ticketItem(want)}}
	c := mustNewClient(t, db)

	got, err := c.Get(context.Background(), "law", "abc")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "TENANT#law", db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS).Value)
}

func TestGet_NotFound(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)
	_, err := c.Get(context.Background(), "law", "missing")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestGet_Error(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.Get(context.Background(), "law", "abc")
	require.ErrorContains(t, err, "boom")
	require.NotErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestSave(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.Save(context.Background(), sampleTicket("abc", t0)))
	require.Equal(t, "test-table", *db.lastPutInput.TableName)
	require.Equal(t, "SUP-abc", db.lastPutInput.Item["publicId"].(*types.AttributeValueMemberS).Value)

	require.ErrorIs(t, c.Save(context.Background(), domain.Ticket{TenantID: "law"}), errMissingKeys)

	db.putErr = errors.New("throttled")
	require.ErrorContains(t, c.Save(context.Background(), sampleTicket("abc", t0)), "throttled")
}

func TestList_PaginatesFiltersAndSorts(t *testing.T) {
	older := sampleTicket("a", t0)
	newer := sampleTicket("b", t0.Add(time.Hour))
	solved := sampleTicket("c", t0.Add(2*time.Hour))
	_, _ = solved.SetStatus(domain.TicketStatusSolved, t0.Add(2*time.Hour))

	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{ticketItem(older), ticketItem(solved)},
			LastEvaluatedKey: map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "TENANT#law"}},
		},
		{Items: []map[string]types.AttributeValue{ticketItem(newer)}},
	}}
	c := mustNewClient(t, db)

	got, err := c.List(context.Background(), "law", domain.TicketFilter{Status: domain.TicketStatusOpen})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].ID)
	require.Equal(t, "a", got[1].ID)

	require.Len(t, db.queryInputs, 2)
	require.Nil(t, db.queryInputs[0].ExclusiveStartKey)
	require.NotNil(t, db.queryInputs[1].ExclusiveStartKey)
}

func TestList_Error(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.List(context.Background(), "law", domain.TicketFilter{})
	require.ErrorContains(t, err, "List query")
}
