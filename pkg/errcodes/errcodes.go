package errcodes

import (
	"net/http"

	"git.appkode.ru/pub/go/failure"
)

const (
	InternalServerError failure.ErrorCode = "InternalServerError"
	TimeoutExceeded     failure.ErrorCode = "TimeoutExceeded"
	Forbidden           failure.ErrorCode = "Forbidden"
	Unauthorized        failure.ErrorCode = "Unauthorized"
	ValidationError     failure.ErrorCode = "ValidationError"
	NotFound            failure.ErrorCode = "NotFound"
	CSRFTokenMismatch   failure.ErrorCode = "CSRFTokenMismatch"

	ProductNotFound     failure.ErrorCode = "ProductNotFound"
	SoldCountNotFound   failure.ErrorCode = "SoldCountNotFound"
	VariantNotFound     failure.ErrorCode = "VariantNotFound"
	CartItemNotFound    failure.ErrorCode = "CartItemNotFound"
	InvalidProductID    failure.ErrorCode = "InvalidProductID"
	InvalidVariantID    failure.ErrorCode = "InvalidVariantID"
	InvalidLimit        failure.ErrorCode = "InvalidLimit"
	InvalidQuantity     failure.ErrorCode = "InvalidQuantity"
	InvalidPriceType    failure.ErrorCode = "InvalidPriceType"
	InvalidDiscount     failure.ErrorCode = "InvalidDiscount"
	RefreshInProgress   failure.ErrorCode = "RefreshInProgress"
	SoldCountComputeErr failure.ErrorCode = "SoldCountComputeError"
)

//nolint:gochecknoglobals
var httpStatuses = map[failure.ErrorCode]int{
	InternalServerError: http.StatusInternalServerError,
	TimeoutExceeded:     http.StatusGatewayTimeout,
	Forbidden:           http.StatusForbidden,
	Unauthorized:        http.StatusUnauthorized,
	ValidationError:     http.StatusBadRequest,
	NotFound:            http.StatusNotFound,
	CSRFTokenMismatch:   http.StatusForbidden,
	ProductNotFound:     http.StatusNotFound,
	SoldCountNotFound:   http.StatusNotFound,
	VariantNotFound:     http.StatusNotFound,
	CartItemNotFound:    http.StatusNotFound,
	InvalidProductID:    http.StatusBadRequest,
	InvalidVariantID:    http.StatusBadRequest,
	InvalidLimit:        http.StatusBadRequest,
	InvalidQuantity:     http.StatusBadRequest,
	InvalidPriceType:    http.StatusBadRequest,
	InvalidDiscount:     http.StatusBadRequest,
	RefreshInProgress:   http.StatusConflict,
	SoldCountComputeErr: http.StatusInternalServerError,
}

// HTTPStatus maps a code to the response status, 500 for unknown codes.
func HTTPStatus(code failure.ErrorCode) int {
	if status, ok := httpStatuses[code]; ok {
		return status
	}

	return http.StatusInternalServerError
}
