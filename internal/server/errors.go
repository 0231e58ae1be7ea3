package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// errorBody is the JSON body of HTTP error responses. Validation failures
// list the offending fields.
type errorBody struct {
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

// classify maps err to its HTTP status and gRPC code.
func classify(err error) (int, codes.Code) {
	var (
		verr  *model.ValidationError
		uerr  *model.UnauthenticatedError
		perr  *model.PermissionError
		nferr *model.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, codes.InvalidArgument
	case errors.As(err, &uerr):
		return http.StatusUnauthorized, codes.Unauthenticated
	case errors.As(err, &perr):
		return http.StatusForbidden, codes.PermissionDenied
	case errors.As(err, &nferr):
		return http.StatusNotFound, codes.NotFound
	case errors.Is(err, context.Canceled):
		return 499, codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codes.DeadlineExceeded
	default:
		return http.StatusInternalServerError, codes.Internal
	}
}

// writeServiceError writes err as a JSON error response.
func writeServiceError(w http.ResponseWriter, err error) {
	code, _ := classify(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeError(w, code, "internal server error")
		return
	}
	body := errorBody{Error: err.Error()}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Errors
	}
	writeJSON(w, code, body)
}

// grpcError converts err to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	_, code := classify(err)
	if code == codes.Internal {
		slog.Error("rpc failed", "error", err)
		return status.Error(code, "internal server error")
	}
	return status.Error(code, err.Error())
}
