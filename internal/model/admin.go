package model

import "time"

// Admin is an administrative account that can sign in to the content
// dashboard. Passwords are stored as bcrypt hashes.
type Admin struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // bcrypt hash, never expose
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AdminView is the read projection of an Admin. It is the only shape in which
// an account leaves the process.
type AdminView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Safe returns the password-free projection of the account.
func (a *Admin) Safe() AdminView {
	return AdminView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}
