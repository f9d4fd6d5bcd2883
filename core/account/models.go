package account

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/gatheria/core"
)

type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

var Roles = []Role{RoleInstructor, RoleStudent}

// ParseRole maps a role path segment (e.g. `/auth/student/login`) to a Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(core.CleanString(s, true /* lower */)); r {
	case RoleInstructor, RoleStudent:
		return r, true
	}
	return "", false
}

type Account struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           Role       `json:"role"`
	State          State      `json:"activationState"`
	StateReason    string     `json:"stateReason,omitempty"`
	StateChangedAt time.Time  `json:"stateChangedAt"`
	Affiliation    string     `json:"affiliation,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivatedAt,omitempty"`
	PasswordHash   []byte     `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"` // UTC
	UpdatedAt      time.Time  `json:"updatedAt"` // UTC
	LastLogin      time.Time  `json:"lastLogin"` // UTC
}

func (acc *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	return nil
}

func (acc *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(pwd))
}

// IsActive reports whether the account may use protected resources.
func (acc Account) IsActive() bool {
	return acc.State == StateActive && acc.DeactivatedAt == nil
}

func (acc Account) IsDeactivated() bool { return acc.DeactivatedAt != nil }

func (acc Account) Principal() core.Principal {
	return core.Principal{ID: acc.ID, Name: acc.Name, Email: acc.Email}
}

// NewAccount contains information needed to register a new Account.
type NewAccount struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Name            string `json:"name" validate:"required,notblank,max=150"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Affiliation     string `json:"affiliation" validate:"max=150"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Role            Role   `json:"-" validate:"required,role"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Name = core.CleanString(na.Name)
	na.Affiliation = core.CleanString(na.Affiliation)
	na.Phone = core.CleanString(na.Phone)
	if na.Role != RoleInstructor {
		na.Affiliation = ""
	}
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.Phone != "" {
		na.Phone, _ = NormalizePhone(na.Phone) // already validated
	}
	return nil
}
