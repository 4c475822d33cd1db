package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-peerlink/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func commandReservedTagError(tag string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   "tag",
		Message: "tag is reserved for entity synchronization",
		Value:   tag,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorReservedTag).
		WithSeverity(goerrors.SeverityError)
}
