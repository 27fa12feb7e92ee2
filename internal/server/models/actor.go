package models

// Actor identifies who performed an engine operation. Authorization is
// decided outside this service; the engine only records attribution.
type Actor struct {
	ID          string
	DisplayName string
}

// Label returns the value stored in changedBy and audit fields.
func (a Actor) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}
