package memstore

// NotFoundError is returned when an entity doesn't exist in the store.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	if e.Name == "" {
		return "entity not found"
	}

	return "entity not found: " + e.Name
}
