package domain

import "time"

// Closed role set. Role checks dispatch on these constants only; anything else
// is rejected at the boundary.
const (
	RoleBuyer   = "BUYER"
	RoleSeller  = "SELLER"
	RoleButcher = "BUTCHER"
	RoleAdmin   = "ADMIN"
)

// ValidRole reports whether name is one of the known roles.
func ValidRole(name string) bool {
	switch name {
	case RoleBuyer, RoleSeller, RoleButcher, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	UserID        string     `json:"id" dynamodbav:"user_id"`
	Email         string     `json:"email" dynamodbav:"email"`
	PasswordHash  string     `json:"-" dynamodbav:"password_hash"`
	Roles         []string   `json:"roles" dynamodbav:"roles"`
	FirstName     string     `json:"first_name,omitempty" dynamodbav:"first_name"`
	LastName      string     `json:"last_name,omitempty" dynamodbav:"last_name"`
	City          string     `json:"city,omitempty" dynamodbav:"city"`
	EmailVerified bool       `json:"email_verified" dynamodbav:"email_verified"`
	Enable        int        `json:"enable" dynamodbav:"enable"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt     time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// UpdateUserRequest carries a partial profile update. Nil fields are untouched.
type UpdateUserRequest struct {
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	City      *string   `json:"city"`
	Roles     *[]string `json:"roles"`
}

type RegisterRequest struct {
	Email             string   `json:"email" validate:"required,email"`
	Password          string   `json:"password" validate:"required,min=8,max=72"`
	Roles             []string `json:"roles"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	City              string   `json:"city"`
	VerificationToken string   `json:"verification_token"`
}
