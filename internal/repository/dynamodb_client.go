package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chatdesk/internal/domain"
)

const (
	pkPrefixTenant = "TENANT#"
	skPrefixTicket = "TICKET#"
)

var errMissingKeys = errors.New("repository: tenant id and ticket id are required")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client stores tickets in a single DynamoDB table partitioned by tenant.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func tenantPK(tenantID string) string {
	return pkPrefixTenant + tenantID
}

func ticketSK(ticketID string) string {
	return skPrefixTicket + ticketID
}

// Get reads one ticket with a consistent read.
func (c *Client) Get(ctx context.Context, tenantID, id string) (domain.Ticket, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: ticketSK(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("repository: Get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	t, err := itemToTicket(out.Item)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("repository: Get decode: %w", err)
	}
	return t, nil
}

// Save writes the whole ticket item, replacing any previous version.
func (c *Client) Save(ctx context.Context, t domain.Ticket) error {
	if err := validateKeys(t); err != nil {
		return err
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      ticketItem(t),
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

// List queries every ticket of a tenant, following pagination, and filters
// in memory. Ticket volume per tenant is small enough for a single partition.
func (c *Client) List(ctx context.Context, tenantID string, f domain.TicketFilter) ([]domain.Ticket, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTicket},
		},
	}

	var tickets []domain.Ticket
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: List query: %w", err)
		}
		for _, item := range out.Items {
			t, err := itemToTicket(item)
			if err != nil {
				return nil, fmt.Errorf("repository: List unmarshal: %w", err)
			}
			if f.Match(&t) {
				tickets = append(tickets, t)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return sortAndLimit(tickets, f.Limit), nil
}

func ticketItem(t domain.Ticket) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: tenantPK(t.TenantID)},
		"SK":             &types.AttributeValueMemberS{Value: ticketSK(t.ID)},
		"id":             &types.AttributeValueMemberS{Value: t.ID},
		"publicId":       &types.AttributeValueMemberS{Value: t.PublicID},
		"tenantId":       &types.AttributeValueMemberS{Value: t.TenantID},
		"title":          &types.AttributeValueMemberS{Value: t.Title},
		"status":         &types.AttributeValueMemberS{Value: string(t.Status)},
		"priority":       &types.AttributeValueMemberS{Value: string(t.Priority)},
		"messages":       messagesAttr(t.Messages),
		"internalNotes":  notesAttr(t.InternalNotes),
		"lastActivityAt": timeAttr(t.LastActivityAt),
		"createdAt":      timeAttr(t.CreatedAt),
		"updatedAt":      timeAttr(t.UpdatedAt),
	}
	if t.AssignedTo != "" {
		item["assignedTo"] = &types.AttributeValueMemberS{Value: t.AssignedTo}
	}
	if t.SolvedAt != nil {
		item["solvedAt"] = timeAttr(*t.SolvedAt)
	}
	return item
}

func messagesAttr(msgs []domain.TicketMessage) types.AttributeValue {
	l := make([]types.AttributeValue, 0, len(msgs))
	for _, m := range msgs {
		l = append(l, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":      &types.AttributeValueMemberS{Value: string(m.Role)},
			"content":   &types.AttributeValueMemberS{Value: m.Content},
			"timestamp": timeAttr(m.Timestamp),
		}})
	}
	return &types.AttributeValueMemberL{Value: l}
}

func notesAttr(notes []domain.Note) types.AttributeValue {
	l := make([]types.AttributeValue, 0, len(notes))
	for _, n := range notes {
		l = append(l, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"content":   &types.AttributeValueMemberS{Value: n.Content},
			"authorId":  &types.AttributeValueMemberS{Value: n.AuthorID},
			"timestamp": timeAttr(n.Timestamp),
		}})
	}
	return &types.AttributeValueMemberL{Value: l}
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

// itemToTicket converts a DynamoDB attribute map to a Ticket.
func itemToTicket(item map[string]types.AttributeValue) (domain.Ticket, error) {
	var t domain.Ticket
	var err error
	if t.ID, err = strAttr(item, "id"); err != nil {
		return domain.Ticket{}, err
	}
	if t.TenantID, err = strAttr(item, "tenantId"); err != nil {
		return domain.Ticket{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Ticket{}, err
	}
	t.Status = domain.TicketStatus(status)
	priority, err := strAttr(item, "priority")
	if err != nil {
		return domain.Ticket{}, err
	}
	t.Priority = domain.Priority(priority)
	t.PublicID, _ = strAttr(item, "publicId")
	t.Title, _ = strAttr(item, "title")
	t.AssignedTo, _ = strAttr(item, "assignedTo")

	if t.CreatedAt, err = timeAttrValue(item, "createdAt"); err != nil {
		return domain.Ticket{}, err
	}
	if t.UpdatedAt, err = timeAttrValue(item, "updatedAt"); err != nil {
		return domain.Ticket{}, err
	}
	if t.LastActivityAt, err = timeAttrValue(item, "lastActivityAt"); err != nil {
		return domain.Ticket{}, err
	}
	if _, ok := item["solvedAt"]; ok {
		solved, err := timeAttrValue(item, "solvedAt")
		if err != nil {
			return domain.Ticket{}, err
		}
		t.SolvedAt = &solved
	}

	entries, err := listAttr(item, "messages")
	if err != nil {
		return domain.Ticket{}, err
	}
	t.Messages = make([]domain.TicketMessage, 0, len(entries))
	for _, e := range entries {
		role, err := strAttr(e, "role")
		if err != nil {
			return domain.Ticket{}, err
		}
		content, _ := strAttr(e, "content")
		ts, err := timeAttrValue(e, "timestamp")
		if err != nil {
			return domain.Ticket{}, err
		}
		t.Messages = append(t.Messages, domain.TicketMessage{Role: domain.Role(role), Content: content, Timestamp: ts})
	}

	entries, err = listAttr(item, "internalNotes")
	if err != nil {
		return domain.Ticket{}, err
	}
	t.InternalNotes = make([]domain.Note, 0, len(entries))
	for _, e := range entries {
		content, _ := strAttr(e, "content")
		author, _ := strAttr(e, "authorId")
		ts, err := timeAttrValue(e, "timestamp")
		if err != nil {
			return domain.Ticket{}, err
		}
		t.InternalNotes = append(t.InternalNotes, domain.Note{Content: content, AuthorID: author, Timestamp: ts})
	}
	return t, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttrValue(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}

// listAttr returns the map entries of a list attribute; a missing attribute is
// an empty list.
func listAttr(item map[string]types.AttributeValue, key string) ([]map[string]types.AttributeValue, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}
	out := make([]map[string]types.AttributeValue, 0, len(l.Value))
	for i, e := range l.Value {
		m, ok := e.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: %s[%d] is not a map", key, i)
		}
		out = append(out, m.Value)
	}
	return out, nil
}
