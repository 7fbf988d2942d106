package adventures

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidID indicates that an entity identifier is empty or exceeds storage bounds.
	ErrInvalidID = errors.New("adventures: invalid id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("adventures: invalid user id")
	// ErrUnknownKind indicates that a details discriminator is not one of the supported kinds.
	ErrUnknownKind = errors.New("adventures: unknown kind")
	// ErrInvalidDate indicates that an activity date could not be parsed.
	ErrInvalidDate = errors.New("adventures: invalid date")
)

// NormalizeID validates raw input as an entity identifier.
func NormalizeID(rawInput string) (string, error) {
	return normalizeIdentifier(rawInput, ErrInvalidID)
}

// NormalizeUserID validates raw input as a user identifier.
func NormalizeUserID(rawInput string) (string, error) {
	return normalizeIdentifier(rawInput, ErrInvalidUserID)
}

func normalizeIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

// Kind is the discriminator selecting the active details variant.
type Kind string

const (
	KindFishing  Kind = "fishing"
	KindHunting  Kind = "hunting"
	KindClimbing Kind = "climbing"
)

// Kinds lists the supported discriminator values in display order.
func Kinds() []Kind {
	return []Kind{KindFishing, KindHunting, KindClimbing}
}

// ParseKind validates raw input as a Kind.
func ParseKind(rawInput string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(rawInput))); kind {
	case KindFishing, KindHunting, KindClimbing:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, rawInput)
	}
}

// String returns the discriminator value.
func (k Kind) String() string {
	return string(k)
}

// Coordinates is a geographic position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location names where an activity took place.
type Location struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	Elevation   *float64    `json:"elevation,omitempty"`
}

// Comment is appended to an entity by the server and never mutated afterwards.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentDraft is the payload submitted when commenting.
type CommentDraft struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// User is an external reference owned by the identity collaborator.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

// Adventure is a user-submitted activity record.
type Adventure struct {
	ID          string
	UserID      string
	ImageURL    string
	Date        Date
	Location    Location
	Details     Details
	Description string
	Likes       []string
	Comments    []Comment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Kind reports the discriminator of the active details variant.
func (a Adventure) Kind() Kind {
	if a.Details == nil {
		return ""
	}
	return a.Details.Kind()
}

// HasLike reports whether userID is a member of the like set.
func (a Adventure) HasLike(userID string) bool {
	for _, liker := range a.Likes {
		if liker == userID {
			return true
		}
	}
	return false
}

// WithLike returns a copy whose like set contains userID exactly once.
func (a Adventure) WithLike(userID string) Adventure {
	if a.HasLike(userID) {
		return a
	}
	likes := make([]string, 0, len(a.Likes)+1)
	likes = append(likes, a.Likes...)
	a.Likes = append(likes, userID)
	return a
}

// WithoutLike returns a copy whose like set does not contain userID.
func (a Adventure) WithoutLike(userID string) Adventure {
	if !a.HasLike(userID) {
		return a
	}
	likes := make([]string, 0, len(a.Likes))
	for _, liker := range a.Likes {
		if liker != userID {
			likes = append(likes, liker)
		}
	}
	a.Likes = likes
	return a
}

// WithComment returns a copy with comment appended to the comment sequence.
func (a Adventure) WithComment(comment Comment) Adventure {
	comments := make([]Comment, 0, len(a.Comments)+1)
	comments = append(comments, a.Comments...)
	a.Comments = append(comments, comment)
	return a
}

// Patch is a partial update. Nil fields are left untouched by the server.
type Patch struct {
	ImageURL    *string
	Date        *Date
	Location    *Location
	Details     Details
	Description *string
}

// IsEmpty reports whether the patch carries no fields.
func (p Patch) IsEmpty() bool {
	return p.ImageURL == nil && p.Date == nil && p.Location == nil && p.Details == nil && p.Description == nil
}
