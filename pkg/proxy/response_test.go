package proxy

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/proxy/types"
)

func TestFormatChatCompletionResponse(t *testing.T) {
	resp := FormatChatCompletionResponse("chatcmpl-abc", "gpt-4", "Hello there", "")

	if resp.ID != "chatcmpl-abc" {
		t.Errorf("ID = %q", resp.ID)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("Object = %q", resp.Object)
	}
	if resp.Model != "gpt-4" {
		t.Errorf("Model = %q", resp.Model)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("got %d choices, want 1", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Role != "assistant" {
		t.Errorf("Role = %q", choice.Message.Role)
	}
	if choice.Message.Content != "Hello there" {
		t.Errorf("Content = %v", choice.Message.Content)
	}
	if choice.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", choice.FinishReason)
	}
}

func TestNewResponseID(t *testing.T) {
	id := NewResponseID()
	if !strings.HasPrefix(id, "chatcmpl-") {
		t.Errorf("NewResponseID() = %q, want chatcmpl- prefix", id)
	}
	if id == NewResponseID() {
		t.Error("NewResponseID() returned duplicate IDs")
	}
}

func TestFormatStreamChunk(t *testing.T) {
	first := FormatStreamChunk("chatcmpl-1", "gpt-4", "Hel", true)
	if first.Object != "chat.completion.chunk" {
		t.Errorf("Object = %q", first.Object)
	}
	if first.Choices[0].Delta.Role != "assistant" {
		t.Error("first chunk should carry assistant role")
	}
	if first.Choices[0].Delta.Content != "Hel" {
		t.Errorf("Content = %q", first.Choices[0].Delta.Content)
	}
	if first.Choices[0].FinishReason != nil {
		t.Error("non-final chunk should have nil finish_reason")
	}

	later := FormatStreamChunk("chatcmpl-1", "gpt-4", "lo", false)
	if later.Choices[0].Delta.Role != "" {
		t.Error("later chunks should not repeat role")
	}
}

func TestFormatFinalChunk(t *testing.T) {
	final := FormatFinalChunk("chatcmpl-1", "gpt-4", "")
	if final.Choices[0].FinishReason == nil || *final.Choices[0].FinishReason != "stop" {
		t.Errorf("FinishReason = %v, want stop", final.Choices[0].FinishReason)
	}
	if final.Choices[0].Delta.Content != "" {
		t.Error("final chunk delta should be empty")
	}
}

func TestWriteSSEChunk(t *testing.T) {
	w := httptest.NewRecorder()
	chunk := FormatStreamChunk("chatcmpl-1", "gpt-4", "hi", true)

	if err := WriteSSEChunk(w, chunk); err != nil {
		t.Fatalf("WriteSSEChunk: %v", err)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Errorf("body %q missing data: prefix", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("body %q missing terminating blank line", body)
	}

	var decoded types.ChatCompletionStreamChunk
	payload := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("chunk payload not valid JSON: %v", err)
	}
	if decoded.Choices[0].Delta.Content != "hi" {
		t.Errorf("decoded content = %q", decoded.Choices[0].Delta.Content)
	}
}

func TestWriteSSEDone(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteSSEDone(w); err != nil {
		t.Fatalf("WriteSSEDone: %v", err)
	}
	if w.Body.String() != "data: [DONE]\n\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestWriteSSEError(t *testing.T) {
	w := httptest.NewRecorder()
	errResp := types.NewBadGatewayError("executor failed")
	if err := WriteSSEError(w, errResp); err != nil {
		t.Fatalf("WriteSSEError: %v", err)
	}
	if !strings.Contains(w.Body.String(), "executor failed") {
		t.Errorf("body = %q missing error message", w.Body.String())
	}
}

func TestWriteErrorResponse_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		resp *types.ErrorResponse
		want int
	}{
		{"invalid request", types.NewInvalidRequestError("bad", "model", types.CodeInvalidValue), 400},
		{"authentication", types.NewAuthenticationError("no key"), 401},
		{"unavailable", types.NewServiceUnavailableError("no executors"), 503},
		{"timeout", types.NewGatewayTimeoutError("timed out"), 504},
		{"bad gateway", types.NewBadGatewayError("upstream failed"), 502},
		{"server error", types.NewServerError("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if err := WriteErrorResponse(w, tt.resp); err != nil {
				t.Fatalf("WriteErrorResponse: %v", err)
			}
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestHandleError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   string
		wantStatus int
	}{
		{"auth", &bridge.AuthError{Subject: "client", Reason: "bad key"}, types.ErrorTypeAuthentication, 401},
		{"no mapping", &bridge.NoMappingError{Model: "gpt-9"}, types.ErrorTypeInvalidRequest, 400},
		{"no workers", &bridge.NoWorkersError{Model: "gpt-4"}, types.ErrorTypeServiceUnavailable, 503},
		{"queue timeout", &bridge.TimeoutError{Phase: "queue"}, types.ErrorTypeGatewayTimeout, 504},
		{"executor lost", &bridge.ExecutorTransportError{ExecutorID: "ex-1"}, types.ErrorTypeBadGateway, 502},
		{"validation", &RequestError{Message: "bad", Code: types.CodeInvalidValue, Param: "model"}, types.ErrorTypeInvalidRequest, 400},
		{"unknown", context.DeadlineExceeded, types.ErrorTypeServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := HandleError(tt.err)
			if resp.Error.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Error.Type, tt.wantType)
			}
			if got := resp.Error.HTTPStatusCode(); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestStatusCodeForError_Cancelled(t *testing.T) {
	if got := StatusCodeForError(context.Canceled); got != 499 {
		t.Errorf("StatusCodeForError(Canceled) = %d, want 499", got)
	}
}
