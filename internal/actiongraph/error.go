package actiongraph

import "fmt"

// CycleError reports a dependency cycle discovered during Resolve.
type CycleError struct {
	Cycle []NodeID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: %v", e.Cycle)
}
