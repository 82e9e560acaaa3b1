package models

import "time"

type Task struct {
	ID        string
	UserID    string
	Content   string
	Completed bool
	// Order positions the task within its user's list. Ties are
	// broken by ID.
	Order     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Less reports whether t sorts before other in a user's list.
func (t *Task) Less(other *Task) bool {
	if t.Order != other.Order {
		return t.Order < other.Order
	}
	return t.ID < other.ID
}
