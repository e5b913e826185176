package storage

// NotFoundError is returned when an article doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "article not found"
	}

	return "article not found: " + e.ID
}
