package ethproofsapi

import "fmt"

// Error wraps any non-success response from the submission API, whether
// surfaced as a non-200 status or an application-level `{"error": ...}`
// body. Callers never need to distinguish the two: the local ledger, not
// this client, is the authoritative record of outcome (spec.md §4.4/§7).
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ethproofs api %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("ethproofs api %s: %s", e.Op, e.Message)
}
