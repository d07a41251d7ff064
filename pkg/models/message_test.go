package models

import (
	"encoding/json"
	"testing"
)

func TestAttachment_Struct(t *testing.T) {
	att := Attachment{
		ID:       "att-123",
		Type:     "image",
		URL:      "http://example.com/image.png",
		Filename: "image.png",
		MimeType: "image/png",
		Size:     1024,
	}

	if att.ID != "att-123" {
		t.Errorf("ID = %q, want %q", att.ID, "att-123")
	}
	if att.Type != "image" {
		t.Errorf("Type = %q, want %q", att.Type, "image")
	}
	if att.Size != 1024 {
		t.Errorf("Size = %d, want 1024", att.Size)
	}
}

func TestToolCall_Struct(t *testing.T) {
	tc := ToolCall{
		ID:    "tc-123",
		Name:  "web_search",
		Input: json.RawMessage(`{"query": "test query"}`),
	}

	if tc.ID != "tc-123" {
		t.Errorf("ID = %q, want %q", tc.ID, "tc-123")
	}
	if tc.Name != "web_search" {
		t.Errorf("Name = %q, want %q", tc.Name, "web_search")
	}

	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(tc.Input, &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if input.Query != "test query" {
		t.Errorf("Input.Query = %q, want %q", input.Query, "test query")
	}
}

func TestToolResult_Struct(t *testing.T) {
	tr := ToolResult{
		ToolCallID: "tc-123",
		Content:    "search results here",
	}

	if tr.ToolCallID != "tc-123" {
		t.Errorf("ToolCallID = %q, want %q", tr.ToolCallID, "tc-123")
	}
	if tr.IsError {
		t.Error("IsError = true, want false")
	}
}

func TestToolResult_JSONRoundTrip(t *testing.T) {
	tr := ToolResult{ToolCallID: "tc-9", Content: "oops", IsError: true}

	raw, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ToolResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != tr {
		t.Errorf("round trip = %+v, want %+v", decoded, tr)
	}
}
