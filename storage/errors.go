package storage

import "errors"

// Storage error constants
var (
	// ErrDatasetNotFound is returned when no document matches the requested item id
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDuplicateItemID is returned when an insert collides on the unique item_id index
	ErrDuplicateItemID = errors.New("dataset with this item id already exists")

	// ErrNoChanges is returned when an update matched a document but modified nothing
	ErrNoChanges = errors.New("no changes were made")
)
