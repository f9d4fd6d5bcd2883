package lecture

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/gate"
)

type Lecture struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"ownerId"`
	Code          string    `json:"code"`
	CodeCreatedAt time.Time `json:"codeCreatedAt"` // UTC
	CreatedAt     time.Time `json:"createdAt"`     // UTC
}

// Identifier is the `{code}-{id}` form used in lecture URLs.
func (l Lecture) Identifier() string {
	return l.Code + "-" + l.ID
}

func (l Lecture) Ref() *gate.LectureRef {
	return &gate.LectureRef{ID: l.ID, OwnerID: l.OwnerID}
}

// ParseIdentifier extracts the lecture ID from `{code}-{id}` or a bare id.
// The id is authoritative; the code prefix may be stale after a rotation and is ignored.
func ParseIdentifier(identifier string) (string, bool) {
	identifier = strings.TrimSpace(identifier)
	if _, err := uuid.Parse(identifier); err == nil {
		return identifier, true
	}
	i := strings.IndexByte(identifier, '-')
	if i < 0 {
		return "", false
	}
	id := identifier[i+1:]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// NormalizeCode is how codes are compared: trimmed and upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}

// NewLecture contains information needed to create a new Lecture.
type NewLecture struct {
	Name string `json:"name" validate:"required,notblank,max=150"`
}

func (nl *NewLecture) Validate(validate *validator.Validate) error {
	nl.Name = core.CleanString(nl.Name)
	return validate.Struct(nl)
}
