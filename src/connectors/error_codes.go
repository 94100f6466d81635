package connectors

import (
	"errors"
	"fmt"
)

const codeDuplicateClOrdID = 11081

// phemexErrorCodes maps Phemex bizError codes to human-readable messages.
var phemexErrorCodes = map[int]string{
	11001: "TE_SUCCESS",
	11002: "TE_UNKNOWN_ERROR",
	11003: "TE_INVALID_ARGUMENT",
	11005: "TE_MAINTENANCE_MODE",
	11012: "TE_REPLACE_TO_INVALID_QTY",
	11013: "TE_REPLACE_TO_INVALID_PRICE",
	11015: "TE_PRICE_TOO_SMALL",
	11016: "TE_PRICE_TOO_LARGE",
	11017: "TE_QTY_TOO_SMALL",
	11018: "TE_QTY_TOO_LARGE",
	11050: "TE_RISK_LIMIT_EXCEEDED",
	11051: "TE_INSUFFICIENT_BALANCE",
	11052: "TE_INSUFFICIENT_MARGIN",
	11062: "TE_POSITION_NOT_EXIST",
	11070: "TE_MARKET_CLOSED",
	11081: "TE_CLIENT_ID_EXIST",
	11082: "TE_CLIENT_ID_INVALID",
	11100: "TE_TOO_MANY_ORDERS",
	11120: "TE_CONTRACT_NOT_FOUND",
}

// APIError is a non-zero bizError returned inside a 200 response envelope.
// It unwraps to ErrExchangeRejected so callers can classify it without
// inspecting the code.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange rejected request: %s (code %d)", e.Message(), e.Code)
}

func (e *APIError) Unwrap() error {
	return ErrExchangeRejected
}

// Message returns the documented name for the error code, or a generic
// placeholder when the code is unknown.
func (e *APIError) Message() string {
	if msg, ok := phemexErrorCodes[e.Code]; ok {
		return msg
	}
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("UNKNOWN_ERROR_%d", e.Code)
}

// IsDuplicateClientOrderID reports whether the exchange refused an order
// because the client order ID was already used. Order placement treats this
// as success of an earlier attempt, not a failure.
func IsDuplicateClientOrderID(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeDuplicateClOrdID
	}
	return false
}
