package proxy

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/proxy/types"
)

// HandleError converts broker and validation errors to OpenAI-compatible
// error responses with appropriate HTTP status codes.
//
// Mapping:
//   - RequestError (parse/validation) -> 400
//   - bridge.AuthError               -> 401
//   - bridge.NoMappingError          -> 400
//   - bridge.NoWorkersError          -> 503
//   - bridge.TimeoutError            -> 504
//   - bridge.ExecutorTransportError  -> 502
//   - context.Canceled               -> 499 (client went away)
//   - anything else                  -> 500
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var authErr *bridge.AuthError
	if errors.As(err, &authErr) {
		return types.NewAuthenticationError(authErr.Error())
	}

	var mappingErr *bridge.NoMappingError
	if errors.As(err, &mappingErr) {
		return types.NewInvalidRequestError(
			mappingErr.Error(),
			"model",
			types.CodeModelNotFound,
		)
	}

	var workersErr *bridge.NoWorkersError
	if errors.As(err, &workersErr) {
		return types.NewServiceUnavailableError(workersErr.Error())
	}

	var timeoutErr *bridge.TimeoutError
	if errors.As(err, &timeoutErr) {
		return types.NewGatewayTimeoutError(timeoutErr.Error())
	}

	var transportErr *bridge.ExecutorTransportError
	if errors.As(err, &transportErr) {
		return types.NewBadGatewayError(
			fmt.Sprintf("upstream executor failed: %v", transportErr.Error()),
		)
	}

	if errors.Is(err, context.Canceled) {
		return types.NewErrorResponse(
			"request was cancelled by the client",
			types.ErrorTypeInvalidRequest,
			"",
			types.CodeRequestCancelled,
		)
	}

	// Default to internal server error for unknown errors
	return types.NewServerError(
		"An internal error occurred. Please try again later.",
	)
}

// StatusCodeForError returns the HTTP status a broker error maps to. Client
// cancellation reports the nginx-style 499 used only for usage accounting,
// never on the wire.
func StatusCodeForError(err error) int {
	if errors.Is(err, context.Canceled) {
		return 499
	}
	return HandleError(err).Error.HTTPStatusCode()
}
