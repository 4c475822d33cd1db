package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-peerlink/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryConflict:
		return core.ErrorConflict
	case goerrors.CategoryOperation, goerrors.CategoryNotFound:
		return core.ErrorOperationFailed
	case goerrors.CategoryExternal:
		return core.ErrorConnectFailed
	default:
		return core.ErrorInternal
	}
}

func channelClosedError(kind string, peer core.PeerID) error {
	return transportError(
		"transport: no open channel to peer",
		goerrors.CategoryOperation,
		http.StatusConflict,
		map[string]any{"transport": kind, "peer_id": string(peer)},
	)
}

func notConnectedError(kind string) error {
	return transportError(
		"transport: adapter is not connected",
		goerrors.CategoryOperation,
		http.StatusServiceUnavailable,
		map[string]any{"transport": kind},
	)
}

func nilAdapterError() error {
	return transportError("transport: adapter is nil", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
}
