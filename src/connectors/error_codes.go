package connectors

import "fmt"

// PhemexErrorCodes maps the Phemex bizError codes this client acts on to readable names.
var PhemexErrorCodes = map[int]string{
	10001: "OM_DUPLICATE_ORDERID",           // Duplicated order ID
	10002: "OM_ORDER_NOT_FOUND",             // Order already filled, canceled or never existed
	10003: "OM_ORDER_PENDING_CANCEL",        // Cancel already in progress
	10005: "OM_INSUFFICIENT_AVAILABLE_BALANCE",
	11001: "TE_NO_ENOUGH_AVAILABLE_BALANCE",
	11003: "TE_INVALID_ARGUMENT",
	11011: "TE_REDUCE_ONLY_ABORT", // reduce-only order would increase the position
	11015: "TE_PRICE_TOO_SMALL",
	11017: "TE_QTY_TOO_SMALL",
	11051: "TE_INSUFFICIENT_BALANCE",
	11052: "TE_INSUFFICIENT_MARGIN",
	11062: "TE_POSITION_NOT_EXIST",
	11081: "TE_CLIENT_ID_EXIST",
	11120: "TE_CONTRACT_NOT_FOUND",
}

// GetErrorMsg returns a human-readable message for a given Phemex error code.
func GetErrorMsg(code int) string {
	if msg, ok := PhemexErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_PHEMEX_ERROR_%d", code)
}

// APIError is a non-zero business code returned by Phemex.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("phemex error %d (%s): %s", e.Code, GetErrorMsg(e.Code), e.Msg)
}

// OrderGone reports whether the error means the order is no longer on the book.
func (e *APIError) OrderGone() bool {
	return e.Code == 10002 || e.Code == 10003
}
