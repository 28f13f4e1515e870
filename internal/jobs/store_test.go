package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/citaflow/citaflow/pkg/logging"
)

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, in)
	return &dynamodb.UpdateItemOutput{}, m.updateErr
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, m.getErr
	}
	return m.getOutput, m.getErr
}

func TestPutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "message_jobs", logging.Default())

	job := &Record{
		JobID:    "job-123",
		Channel:  "WHATSAPP",
		SenderID: "521555000001",
	}
	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}
	if mock.putInput == nil {
		t.Fatal("expected PutItem to be called")
	}

	var stored Record
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}
	if stored.Status != StatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(jobId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestPutPendingNilJob(t *testing.T) {
	store := NewStore(&mockDynamo{}, "message_jobs", logging.Default())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("expected error when job is nil")
	}
}

func TestMarkCompletedUsesReservedAttributeNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "message_jobs", logging.Default())

	if err := store.MarkCompleted(context.Background(), "job-123", "conv-1", "¡Listo!"); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}
	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}
	update := mock.updateInputs[0]
	if update.ExpressionAttributeNames["#status"] != "status" {
		t.Fatal("expected #status alias for reserved attribute")
	}
	status, ok := update.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS)
	if !ok || status.Value != string(StatusCompleted) {
		t.Fatalf("unexpected status value: %+v", update.ExpressionAttributeValues[":status"])
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "message_jobs", logging.Default())

	if err := store.MarkFailed(context.Background(), "job-9", "conversation busy"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	update := mock.updateInputs[0]
	msg, ok := update.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS)
	if !ok || msg.Value != "conversation busy" {
		t.Fatalf("unexpected error value: %+v", update.ExpressionAttributeValues[":error"])
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := NewStore(&mockDynamo{}, "message_jobs", logging.Default())
	_, err := store.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestGetJobRoundTrip(t *testing.T) {
	rec := Record{JobID: "job-1", Status: StatusCompleted, Channel: "INSTAGRAM", ConversationID: "conv-2"}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	store := NewStore(&mockDynamo{getOutput: &dynamodb.GetItemOutput{Item: item}}, "message_jobs", logging.Default())

	got, err := store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob returned error: %v", err)
	}
	if got.Status != StatusCompleted || got.ConversationID != "conv-2" {
		t.Fatalf("unexpected record: %+v", got)
	}
}
