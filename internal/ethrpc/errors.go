package ethrpc

import "fmt"

// TimeoutError indicates the request exceeded its deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("eth rpc %s: timeout", e.Op) }

// TransportError indicates a network-level failure (refused, DNS, non-200).
type TransportError struct {
	Op     string
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("eth rpc %s: transport error: %s", e.Op, e.Reason)
}

// JSONRPCError wraps an application-level `{"error": ...}` response. The
// server responded (success, from a transport point of view); the method
// itself failed.
type JSONRPCError struct {
	Op      string
	Payload string
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("eth rpc %s: json-rpc error: %s", e.Op, e.Payload)
}

// BadResponseError indicates a 200 response that could not be parsed into
// the expected shape.
type BadResponseError struct {
	Op     string
	Reason string
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("eth rpc %s: bad response: %s", e.Op, e.Reason)
}
