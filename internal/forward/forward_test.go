package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"votegate/internal/vote"
)

func TestLogConsumer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	c := NewLogConsumer(log)
	if c.Name() != "log" {
		t.Errorf("expected name 'log', got %q", c.Name())
	}

	err := c.Accept(context.Background(), &vote.Vote{
		ServiceName: "MyServer",
		Username:    "Steve",
		Address:     "1.2.3.4",
		Timestamp:   "1700000000",
	})
	if err != nil {
		t.Fatalf("log consumer failed: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["username"] != "Steve" {
		t.Errorf("expected username field, got %v", entry["username"])
	}
	if entry["service_name"] != "MyServer" {
		t.Errorf("expected service_name field, got %v", entry["service_name"])
	}
}

func TestMarshalVote(t *testing.T) {
	data, err := marshalVote(&vote.Vote{
		ServiceName: "MyServer",
		Username:    "Steve",
		Address:     "1.2.3.4",
		Timestamp:   "1700000000",
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded vote.Vote
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if decoded.Username != "Steve" || decoded.ServiceName != "MyServer" {
		t.Errorf("unexpected round trip result: %+v", decoded)
	}
}

func TestRedisForwarderUnreachable(t *testing.T) {
	// Nothing listens here; construction must fail fast rather than hand
	// back a dead consumer.
	if _, err := NewRedisForwarder("127.0.0.1:1", "votes"); err == nil {
		t.Error("expected connection error")
	}
}
