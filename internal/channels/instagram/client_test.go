package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSend(t *testing.T) {
	var gotToken string
	var gotReq SendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(SendResponse{RecipientID: "ig_42", MessageID: "mid.out"})
	}))
	defer server.Close()

	client := NewClient("page-token", nil)
	client.SetGraphAPIBase(server.URL)

	if err := client.Send(context.Background(), "ig_42", "hola"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotToken != "page-token" {
		t.Errorf("expected access token in query, got %s", gotToken)
	}
	if gotReq.Recipient.ID != "ig_42" || gotReq.Message.Text != "hola" {
		t.Errorf("unexpected request: %+v", gotReq)
	}
}

func TestClientSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SendResponse{Error: &APIError{Message: "token expired", Code: 190}})
	}))
	defer server.Close()

	client := NewClient("stale", nil)
	client.SetGraphAPIBase(server.URL)

	if err := client.Send(context.Background(), "ig_42", "hola"); err == nil {
		t.Fatal("expected error when the API reports a failure")
	}
}
