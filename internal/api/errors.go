package api

import (
	"net/http"

	"orderflow/internal/orders"
)

// HTTPStatus maps an engine error to the status code transports return.
func HTTPStatus(err error) int {
	switch orders.KindOf(err) {
	case "":
		return http.StatusOK
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindConflict:
		return http.StatusConflict
	case orders.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody builds the error payload for err. Infrastructure failures do
// not leak their detail.
func ErrorBody(err error) ErrorResponse {
	kind := orders.KindOf(err)
	if kind == orders.KindInfrastructure {
		return ErrorResponse{Error: "internal error", Kind: string(kind)}
	}
	return ErrorResponse{Error: err.Error(), Kind: string(kind)}
}
