package forest

import "fmt"

// StructuralError reports a programming error: a structural operation was given an
// address that does not resolve, or an updater tried to change a node's identity.
// It is raised with panic and is never returned as a value.
type StructuralError struct {
	Op      string
	Address NodeAddress
	Reason  string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("forest: %s at %s: %s", e.Op, e.Address, e.Reason)
}

func structural(op string, addr NodeAddress, format string, args ...any) {
	panic(&StructuralError{Op: op, Address: addr, Reason: fmt.Sprintf(format, args...)})
}
