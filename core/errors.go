package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput        = "PEERLINK_BAD_INPUT"
	ErrorReservedTag     = "PEERLINK_RESERVED_TAG"
	ErrorUnknownTag      = "PEERLINK_UNKNOWN_TAG"
	ErrorConnectFailed   = "PEERLINK_CONNECT_FAILED"
	ErrorConflict        = "PEERLINK_CONFLICT"
	ErrorNotConfigured   = "PEERLINK_NOT_CONFIGURED"
	ErrorOperationFailed = "PEERLINK_OPERATION_FAILED"
	ErrorInternal        = "PEERLINK_INTERNAL"
)

func ReservedTagError(operation string, tag string) *goerrors.Error {
	err := goerrors.New(
		fmt.Sprintf("core: %s: %q is a reserved message tag", operation, tag),
		goerrors.CategoryBadInput,
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorReservedTag)
	err.WithMetadata(map[string]any{"tag": tag, "operation": operation})
	return err
}

func UnknownTagError(from PeerID, tag string) *goerrors.Error {
	err := goerrors.New(
		fmt.Sprintf("core: message tag %q has no subscriber", tag),
		goerrors.CategoryNotFound,
	).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorUnknownTag)
	err.WithMetadata(map[string]any{"tag": tag, "peer_id": string(from)})
	return err
}

// ConnectFailure reports a login failure surfaced by the adapter.
func ConnectFailure(code int, message string) *goerrors.Error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "failure to login"
	}
	err := goerrors.New("core: connect failed: "+message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorConnectFailed)
	err.WithMetadata(map[string]any{"adapter_code": code, "adapter_message": message})
	return err
}

func wrapConnectFailure(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "core: connect failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorConnectFailed)
}

func badInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func conflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorConflict)
}

// SessionClosedError reports an operation attempted on a closed session.
func SessionClosedError(operation string) *goerrors.Error {
	err := conflictError(fmt.Sprintf("core: %s: session is closed", operation))
	err.WithMetadata(map[string]any{"operation": operation})
	return err
}

func notConfiguredError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorNotConfigured)
}

func operationError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorOperationFailed)
}

func IsReservedTagError(err error) bool {
	return hasTextCode(err, ErrorReservedTag)
}

func IsUnknownTagError(err error) bool {
	return hasTextCode(err, ErrorUnknownTag)
}

func IsConnectFailure(err error) bool {
	return hasTextCode(err, ErrorConnectFailed)
}

func IsConflictError(err error) bool {
	return hasTextCode(err, ErrorConflict)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func sessionErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "reserved"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorReservedTag))
	case strings.Contains(msg, "already"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryConflict).WithTextCode(ErrorConflict))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorUnknownTag
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorConnectFailed
	case goerrors.CategoryOperation:
		return ErrorOperationFailed
	default:
		return ErrorInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
