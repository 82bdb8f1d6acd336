package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid chat:send message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatSend(t *testing.T) {
	input := []byte(`{"type":"chat:send","to":"bob","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatSend {
		t.Fatalf("expected type %q, got %q", TypeChatSend, msgType)
	}

	cm, ok := msg.(ChatSendMsg)
	if !ok {
		t.Fatalf("expected ChatSendMsg, got %T", msg)
	}
	if cm.To != "bob" {
		t.Errorf("expected to %q, got %q", "bob", cm.To)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid chat:seen message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatSeen(t *testing.T) {
	input := []byte(`{"type":"chat:seen","partnerId":"alice"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sm, ok := msg.(ChatSeenMsg)
	if !ok {
		t.Fatalf("expected ChatSeenMsg, got %T", msg)
	}
	if sm.PartnerID != "alice" {
		t.Errorf("expected partnerId %q, got %q", "alice", sm.PartnerID)
	}
}

// ---------------------------------------------------------------------------
// Test: NewServerMessage flattens a domain record under a type key
// ---------------------------------------------------------------------------

func TestNewServerMessage_FlattensPayload(t *testing.T) {
	payload := struct {
		ID   string `json:"_id"`
		From string `json:"from"`
		Text string `json:"text"`
		Seen bool   `json:"seen"`
	}{ID: "m1", From: "alice", Text: "hi"}

	data, err := NewServerMessage(TypeChatNew, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeChatNew {
		t.Errorf("expected type %q, got %v", TypeChatNew, result["type"])
	}
	if result["_id"] != "m1" || result["from"] != "alice" || result["text"] != "hi" {
		t.Errorf("payload fields not preserved: %v", result)
	}
	if seen, ok := result["seen"].(bool); !ok || seen {
		t.Errorf("expected seen=false, got %v", result["seen"])
	}
}

func TestNewServerMessage_OverridesType(t *testing.T) {
	data, err := NewServerMessage(TypeChatError, ChatErrorMsg{
		Type:    "something-else",
		Event:   TypeChatSend,
		Code:    "validation_error",
		Message: "message text is empty",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ChatErrorMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeChatError {
		t.Errorf("expected type %q, got %q", TypeChatError, decoded.Type)
	}
	if decoded.Event != TypeChatSend || decoded.Code != "validation_error" {
		t.Errorf("unexpected decoded error: %+v", decoded)
	}
}

func TestNewServerMessage_NonObjectPayload(t *testing.T) {
	if _, err := NewServerMessage(TypePong, "just a string"); err == nil {
		t.Fatal("expected an error for a non-object payload")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"chat:new","_id":"m1"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for a server-only message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != TypeChatNew {
		t.Errorf("expected returned type %q, got %q", TypeChatNew, msgType)
	}
}

func TestParseClientMessage_BadFieldType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"chat:send","to":42,"text":"hi"}`))
	if err == nil {
		t.Fatal("expected a decode error for a numeric recipient")
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"to":"bob"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"chat:send", `{"type":"chat:send","to":"bob","text":"hi"}`, TypeChatSend},
		{"chat:seen", `{"type":"chat:seen","partnerId":"bob"}`, TypeChatSeen},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
