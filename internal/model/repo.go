package model

import "time"

// Repository is a tracked GitHub repository, identified by its owner/name pair.
// It is created on the first scan of that pair and has its UpdatedAt timestamp
// touched on every subsequent scan.
type Repository struct {
	ID        int       `json:"id" db:"id"`
	Owner     string    `json:"owner" db:"owner"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns "owner/name".
func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}
