package venue

import "fmt"

// ConnectError means the session could not be established: bad credentials,
// an unreachable bridge or an unavailable symbol.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return "connect failed: " + e.Reason
	}
	return fmt.Sprintf("connect failed: %s: %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DataError means the venue returned no bars or malformed bars.
type DataError struct {
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err == nil {
		return "market data: " + e.Reason
	}
	return fmt.Sprintf("market data: %s: %v", e.Reason, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// TickError means the current quote could not be read.
type TickError struct {
	Err error
}

func (e *TickError) Error() string { return fmt.Sprintf("tick: %v", e.Err) }
func (e *TickError) Unwrap() error { return e.Err }

// EquityError means account equity is unknown. It is never the same as zero equity.
type EquityError struct {
	Err error
}

func (e *EquityError) Error() string { return fmt.Sprintf("equity unavailable: %v", e.Err) }
func (e *EquityError) Unwrap() error { return e.Err }

// OrderError is an invalid or rejected order. Message is the venue's comment, verbatim.
type OrderError struct {
	Code    int
	Message string
	Err     error
}

func (e *OrderError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("order rejected (retcode %d): %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("order failed: %s: %v", e.Message, e.Err)
	default:
		return "order failed: " + e.Message
	}
}

func (e *OrderError) Unwrap() error { return e.Err }

// CloseError is a failed close of a single position.
type CloseError struct {
	Ticket TradeHandle
	Err    error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close position %d: %v", e.Ticket, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the bridge.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}
