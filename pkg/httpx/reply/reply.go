package reply

import (
	"context"
	"errors"
	"net/http"

	"git.appkode.ru/pub/go/failure"
	jsoniter "github.com/json-iterator/go"

	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

const genericErrorMessage = "internal server error"

// Envelope is the shape of every API response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SupportID string `json:"supportId"`
}

func (e *ErrorResponse) WithDefaultCode(code failure.ErrorCode) {
	if e.Code == "" {
		e.Code = code.String()
	}
}

// codedError is implemented by domain errors that carry their own code.
type codedError interface {
	error
	ErrorCode() failure.ErrorCode
	PublicMessage() string
}

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

func OK(ctx context.Context, w http.ResponseWriter, data any) {
	JSON(ctx, w, http.StatusOK, data)
}

// JSON writes data wrapped in a successful envelope.
func JSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	write(ctx, w, statusCode, Envelope{Success: true, Data: data})
}

func Error(ctx context.Context, w http.ResponseWriter, err error) {
	response := ErrorResponse{SupportID: supportID(ctx)}

	var coded codedError

	switch {
	case errors.As(err, &coded):
		status := errcodes.HTTPStatus(coded.ErrorCode())
		response.Code = coded.ErrorCode().String()
		response.Message = coded.PublicMessage()

		if status >= http.StatusInternalServerError {
			logger(ctx).Error("error", logx.Error(err))

			response.Message = genericErrorMessage
		} else {
			logger(ctx).Warn("error", logx.Error(err))
		}

		writeError(ctx, w, status, response)
	case failure.IsInvalidArgumentError(err):
		logger(ctx).Warn("error", logx.Error(err))

		response.Code = failure.Code(err).String()
		response.Message = failure.Description(err)
		response.WithDefaultCode(errcodes.ValidationError)
		writeError(ctx, w, http.StatusBadRequest, response)
	default:
		logger(ctx).Error("error", logx.Error(err))

		response.Message = genericErrorMessage
		response.WithDefaultCode(errcodes.InternalServerError)
		writeError(ctx, w, http.StatusInternalServerError, response)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, statusCode int, response ErrorResponse) {
	write(ctx, w, statusCode, Envelope{Success: false, Error: &response})
}

func write(ctx context.Context, w http.ResponseWriter, statusCode int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger(ctx).Error("json.Encode", logx.Error(err))
	}
}

func supportID(ctx context.Context) string {
	traceID, err := contextx.TraceIDFromContext(ctx)
	if err != nil {
		return "unsupported"
	}

	return traceID.String()
}
