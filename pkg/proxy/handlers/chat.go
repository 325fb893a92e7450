package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/proxy"
	"mercator-hq/ganymede/pkg/proxy/middleware"
	"mercator-hq/ganymede/pkg/proxy/types"
)

// ChatHandler serves POST /v1/chat/completions by dispatching the request
// through the broker and translating the resulting event stream back into
// the OpenAI response shape.
type ChatHandler struct {
	Broker Broker
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(b Broker) *ChatHandler {
	return &ChatHandler{Broker: b}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	startTime := time.Now()

	if r.Method != http.MethodPost {
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			"method_not_allowed",
		)
		if err := proxy.WriteErrorResponse(w, errResp); err != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", err)
		}
		return
	}

	chatReq, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse request",
			"request_id", requestID,
			"error", err,
		)
		if werr := proxy.WriteErrorResponse(w, proxy.HandleError(err)); werr != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", werr)
		}
		return
	}

	meta := proxy.ExtractRequestMetadata(r, chatReq)
	slog.InfoContext(ctx, "processing chat completion request",
		"request_id", requestID,
		"model", meta.Model,
		"messages", meta.MessageCount,
		"stream", meta.Stream,
		"api_key", meta.APIKey,
		"remote_addr", meta.RemoteAddr,
	)

	principal := middleware.GetPrincipal(ctx)
	breq := proxy.ToBridgeRequest(chatReq, principal)

	st, err := h.Broker.Dispatch(ctx, breq)
	if err != nil {
		slog.WarnContext(ctx, "dispatch failed",
			"request_id", requestID,
			"model", chatReq.Model,
			"error", err,
		)
		if werr := proxy.WriteErrorResponse(w, proxy.HandleError(err)); werr != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", werr)
		}
		return
	}

	if chatReq.Stream {
		h.streamResponse(w, r, chatReq, st, startTime)
		return
	}
	h.aggregateResponse(w, r, chatReq, st, startTime)
}

// aggregateResponse consumes the whole stream and writes one JSON body.
func (h *ChatHandler) aggregateResponse(w http.ResponseWriter, r *http.Request, chatReq *types.ChatCompletionRequest, st *bridge.Stream, startTime time.Time) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var content strings.Builder
	chunkCount := 0

	for {
		ev, err := st.Recv(ctx)
		if err != nil {
			h.Broker.Cancel(st.RequestID())
			slog.WarnContext(ctx, "client disconnected before completion",
				"request_id", requestID,
				"model", chatReq.Model,
				"chunks", chunkCount,
			)
			return
		}

		switch ev.Kind {
		case bridge.EventChunk:
			content.WriteString(ev.Chunk)
			chunkCount++

		case bridge.EventDone:
			resp := proxy.FormatChatCompletionResponse(proxy.NewResponseID(), chatReq.Model, content.String(), "stop")
			if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
				slog.ErrorContext(ctx, "failed to write response",
					"request_id", requestID,
					"error", err,
				)
			}
			slog.InfoContext(ctx, "chat completion successful",
				"request_id", requestID,
				"model", chatReq.Model,
				"chunks", chunkCount,
				"latency_ms", time.Since(startTime).Milliseconds(),
			)
			return

		case bridge.EventError:
			errResp := proxy.HandleError(ev.Err)
			rmeta := proxy.ExtractErrorMetadata(requestID, errResp.Error.HTTPStatusCode(), ev.Err, time.Since(startTime))
			rmeta.Chunks = chunkCount
			slog.WarnContext(ctx, "chat completion failed",
				"request_id", rmeta.RequestID,
				"model", chatReq.Model,
				"status", rmeta.StatusCode,
				"chunks", rmeta.Chunks,
				"latency_ms", rmeta.Latency.Milliseconds(),
				"error", rmeta.Error,
			)
			if werr := proxy.WriteErrorResponse(w, errResp); werr != nil {
				slog.ErrorContext(ctx, "failed to write error response", "error", werr)
			}
			return
		}
	}
}

// streamResponse relays the event stream as Server-Sent Events. SSE headers
// are deferred until the first chunk arrives so that pre-stream failures can
// still carry a meaningful HTTP status code.
func (h *ChatHandler) streamResponse(w http.ResponseWriter, r *http.Request, chatReq *types.ChatCompletionRequest, st *bridge.Stream, startTime time.Time) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	responseID := proxy.NewResponseID()

	chunkCount := 0
	streaming := false

	for {
		ev, err := st.Recv(ctx)
		if err != nil {
			h.Broker.Cancel(st.RequestID())
			slog.WarnContext(ctx, "client disconnected during streaming",
				"request_id", requestID,
				"model", chatReq.Model,
				"chunks_sent", chunkCount,
			)
			return
		}

		switch ev.Kind {
		case bridge.EventChunk:
			if !streaming {
				proxy.SetSSEHeaders(w)
				streaming = true
			}
			chunk := proxy.FormatStreamChunk(responseID, chatReq.Model, ev.Chunk, chunkCount == 0)
			if err := proxy.WriteSSEChunk(w, chunk); err != nil {
				slog.WarnContext(ctx, "failed to write SSE chunk",
					"request_id", requestID,
					"chunks_sent", chunkCount,
					"error", err,
				)
				h.Broker.Cancel(st.RequestID())
				return
			}
			chunkCount++

		case bridge.EventDone:
			if !streaming {
				proxy.SetSSEHeaders(w)
			}
			final := proxy.FormatFinalChunk(responseID, chatReq.Model, "stop")
			if err := proxy.WriteSSEChunk(w, final); err != nil {
				slog.WarnContext(ctx, "failed to write final chunk", "request_id", requestID, "error", err)
			}
			if err := proxy.WriteSSEDone(w); err != nil {
				slog.WarnContext(ctx, "failed to write SSE done marker", "request_id", requestID, "error", err)
			}
			slog.InfoContext(ctx, "streaming chat completion successful",
				"request_id", requestID,
				"model", chatReq.Model,
				"chunks_sent", chunkCount,
				"latency_ms", time.Since(startTime).Milliseconds(),
			)
			return

		case bridge.EventError:
			errResp := proxy.HandleError(ev.Err)
			rmeta := proxy.ExtractErrorMetadata(requestID, errResp.Error.HTTPStatusCode(), ev.Err, time.Since(startTime))
			rmeta.Chunks = chunkCount
			slog.WarnContext(ctx, "streaming chat completion failed",
				"request_id", rmeta.RequestID,
				"model", chatReq.Model,
				"status", rmeta.StatusCode,
				"chunks_sent", rmeta.Chunks,
				"latency_ms", rmeta.Latency.Milliseconds(),
				"error", rmeta.Error,
			)
			if !streaming {
				// Nothing sent yet: a plain JSON error with a real
				// status code is more useful than an SSE event.
				if werr := proxy.WriteErrorResponse(w, errResp); werr != nil {
					slog.ErrorContext(ctx, "failed to write error response", "error", werr)
				}
				return
			}
			if werr := proxy.WriteSSEError(w, errResp); werr != nil {
				slog.ErrorContext(ctx, "failed to write SSE error", "error", werr)
			}
			if werr := proxy.WriteSSEDone(w); werr != nil {
				slog.ErrorContext(ctx, "failed to write SSE done marker", "error", werr)
			}
			return
		}
	}
}
