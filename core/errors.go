package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput          = "CREDSTATE_BAD_INPUT"
	ServiceErrorNotFound          = "CREDSTATE_NOT_FOUND"
	ServiceErrorAlreadyLeased     = "CREDSTATE_ALREADY_LEASED"
	ServiceErrorInvalidFilter     = "CREDSTATE_INVALID_FILTER"
	ServiceErrorInvalidTransition = "CREDSTATE_INVALID_TRANSITION"
	ServiceErrorInternal          = "CREDSTATE_INTERNAL_ERROR"
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case errors.Is(err, ErrAlreadyLeased):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorAlreadyLeased)
	case errors.Is(err, ErrInvalidFilter):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorInvalidFilter)
	case errors.Is(err, ErrInvalidTransition):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorInvalidTransition)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryConflict:
		return ServiceErrorAlreadyLeased
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// MapServiceError translates internal errors into categorized envelopes with
// stable text codes and HTTP status hints.
func MapServiceError(err error) error {
	mapped := serviceErrorMapper(err)
	if mapped == nil {
		return nil
	}
	return mapped
}

// mapWithConfiguredMapper applies a host-supplied mapper when one is wired,
// falling back to the default service mapping.
func mapWithConfiguredMapper(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper != nil {
		if mapped := mapper(err); mapped != nil {
			return mapped
		}
		return nil
	}
	return MapServiceError(err)
}
