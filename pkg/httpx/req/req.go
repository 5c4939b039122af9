package req

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"git.appkode.ru/pub/go/failure"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"storefront/pkg/errcodes"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary         //nolint:gochecknoglobals // skip
	validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // skip
)

// Read decodes the JSON body into dest and validates it. An empty body is
// decoded as the zero value before validation.
func Read(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return failure.NewInvalidArgumentError(
			fmt.Errorf("json.Decode: %w", err).Error(),
			failure.WithCode(errcodes.ValidationError),
			failure.WithDescription("Invalid JSON"),
		)
	}

	if err := validate.StructCtx(r.Context(), dest); err != nil {
		return failure.NewInvalidArgumentError(
			"validation error",
			failure.WithCode(errcodes.ValidationError),
			failure.WithDescription(err.Error()),
		)
	}

	return nil
}

// QueryInt reads a positive integer query parameter, returning def when the
// parameter is absent.
func QueryInt(r *http.Request, name string, def, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, failure.NewInvalidArgumentError(
			fmt.Sprintf("invalid %s %q", name, raw),
			failure.WithCode(errcodes.InvalidLimit),
			failure.WithDescription(name+" must be a positive integer"),
		)
	}

	return min(v, maxValue), nil
}

// PathInt64 parses a positive int64 path parameter.
func PathInt64(raw string, code failure.ErrorCode) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, failure.NewInvalidArgumentError(
			fmt.Sprintf("invalid id %q", raw),
			failure.WithCode(code),
			failure.WithDescription("id must be a positive integer"),
		)
	}

	return v, nil
}
