package adventures

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownCollection indicates that a collection name is not served by the API.
	ErrUnknownCollection = errors.New("adventures: unknown collection")
	// ErrKindNotSupported indicates that a collection cannot carry the entity's kind.
	ErrKindNotSupported = errors.New("adventures: kind not supported by collection")
)

// Collection names a remote entity collection and selects its wire shape.
type Collection string

const (
	// CollectionAdventures carries every kind with a nested, discriminated details object.
	CollectionAdventures Collection = "adventures"
	// CollectionCatches carries fishing entries with the details flattened onto the entity.
	CollectionCatches Collection = "catches"
)

// ParseCollection validates raw input as a Collection.
func ParseCollection(rawInput string) (Collection, error) {
	switch collection := Collection(strings.ToLower(strings.TrimSpace(rawInput))); collection {
	case CollectionAdventures, CollectionCatches:
		return collection, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, rawInput)
	}
}

// String returns the collection path segment.
func (c Collection) String() string {
	return string(c)
}

// Singular returns the display noun for one entity of the collection.
func (c Collection) Singular() string {
	if c == CollectionCatches {
		return "catch"
	}
	return "adventure"
}

// Supports reports whether entities of kind can be stored in the collection.
func (c Collection) Supports(kind Kind) bool {
	if c == CollectionCatches {
		return kind == KindFishing
	}
	return kind == KindFishing || kind == KindHunting || kind == KindClimbing
}

// Marshal encodes a full entity in the collection's wire shape.
func (c Collection) Marshal(adventure Adventure) ([]byte, error) {
	if c == CollectionCatches {
		wire, err := catchWireFrom(adventure)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire)
	}
	return json.Marshal(adventure)
}

// Unmarshal decodes one entity from the collection's wire shape.
func (c Collection) Unmarshal(data []byte) (Adventure, error) {
	if c == CollectionCatches {
		var wire catchWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return Adventure{}, err
		}
		return wire.adventure(), nil
	}
	var adventure Adventure
	if err := json.Unmarshal(data, &adventure); err != nil {
		return Adventure{}, err
	}
	return adventure, nil
}

// UnmarshalList decodes a JSON array of entities, preserving order.
func (c Collection) UnmarshalList(data []byte) ([]Adventure, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	entities := make([]Adventure, 0, len(raw))
	for index, item := range raw {
		adventure, err := c.Unmarshal(item)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", index, err)
		}
		entities = append(entities, adventure)
	}
	return entities, nil
}

// MarshalPatch encodes only the fields present in patch.
func (c Collection) MarshalPatch(patch Patch) ([]byte, error) {
	fields := make(map[string]any)
	if patch.ImageURL != nil {
		fields["imageUrl"] = *patch.ImageURL
	}
	if patch.Date != nil {
		fields["date"] = *patch.Date
	}
	if patch.Location != nil {
		fields["location"] = *patch.Location
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Details != nil {
		if !c.Supports(patch.Details.Kind()) {
			return nil, fmt.Errorf("%w: %s in %s", ErrKindNotSupported, patch.Details.Kind(), c)
		}
		if c == CollectionCatches {
			fishing := patch.Details.(FishingDetails)
			fields["species"] = fishing.Species
			fields["size"] = fishing.Size
			fields["length"] = fishing.Length
			fields["method"] = fishing.Method
		} else {
			fields["type"] = patch.Details.Kind()
			fields["details"] = patch.Details
		}
	}
	return json.Marshal(fields)
}

type adventureWire struct {
	ID          string          `json:"id,omitempty"`
	UserID      string          `json:"userId"`
	Type        Kind            `json:"type"`
	ImageURL    string          `json:"imageUrl"`
	Date        Date            `json:"date"`
	Location    Location        `json:"location"`
	Details     json.RawMessage `json:"details"`
	Description string          `json:"description"`
	Likes       []string        `json:"likes"`
	Comments    []Comment       `json:"comments"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// MarshalJSON encodes the adventures wire shape. Server-assigned fields are omitted while unset.
func (a Adventure) MarshalJSON() ([]byte, error) {
	details := a.Details
	if details == nil {
		return nil, fmt.Errorf("%w: missing details", ErrUnknownKind)
	}
	rawDetails, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	wire := adventureWire{
		ID:          a.ID,
		UserID:      a.UserID,
		Type:        details.Kind(),
		ImageURL:    a.ImageURL,
		Date:        a.Date,
		Location:    a.Location,
		Details:     rawDetails,
		Description: a.Description,
		Likes:       nonNilLikes(a.Likes),
		Comments:    nonNilComments(a.Comments),
		CreatedAt:   timePointer(a.CreatedAt),
		UpdatedAt:   timePointer(a.UpdatedAt),
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the adventures wire shape, selecting details by the type field.
func (a *Adventure) UnmarshalJSON(data []byte) error {
	var wire adventureWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	kind, err := ParseKind(string(wire.Type))
	if err != nil {
		return err
	}
	details, err := decodeDetails(kind, wire.Details)
	if err != nil {
		return err
	}
	*a = Adventure{
		ID:          wire.ID,
		UserID:      wire.UserID,
		ImageURL:    wire.ImageURL,
		Date:        wire.Date,
		Location:    wire.Location,
		Details:     details,
		Description: wire.Description,
		Likes:       nonNilLikes(wire.Likes),
		Comments:    nonNilComments(wire.Comments),
		CreatedAt:   timeValue(wire.CreatedAt),
		UpdatedAt:   timeValue(wire.UpdatedAt),
	}
	return nil
}

type catchWire struct {
	ID          string        `json:"id,omitempty"`
	UserID      string        `json:"userId"`
	ImageURL    string        `json:"imageUrl"`
	Date        Date          `json:"date"`
	Location    Location      `json:"location"`
	Species     string        `json:"species"`
	Size        Measurement   `json:"size"`
	Length      Measurement   `json:"length"`
	Method      FishingMethod `json:"method"`
	Description string        `json:"description"`
	Likes       []string      `json:"likes"`
	Comments    []Comment     `json:"comments"`
	CreatedAt   *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time    `json:"updatedAt,omitempty"`
}

func catchWireFrom(adventure Adventure) (catchWire, error) {
	fishing, ok := adventure.Details.(FishingDetails)
	if !ok {
		return catchWire{}, fmt.Errorf("%w: %s in %s", ErrKindNotSupported, adventure.Kind(), CollectionCatches)
	}
	return catchWire{
		ID:          adventure.ID,
		UserID:      adventure.UserID,
		ImageURL:    adventure.ImageURL,
		Date:        adventure.Date,
		Location:    adventure.Location,
		Species:     fishing.Species,
		Size:        fishing.Size,
		Length:      fishing.Length,
		Method:      fishing.Method,
		Description: adventure.Description,
		Likes:       nonNilLikes(adventure.Likes),
		Comments:    nonNilComments(adventure.Comments),
		CreatedAt:   timePointer(adventure.CreatedAt),
		UpdatedAt:   timePointer(adventure.UpdatedAt),
	}, nil
}

func (wire catchWire) adventure() Adventure {
	return Adventure{
		ID:       wire.ID,
		UserID:   wire.UserID,
		ImageURL: wire.ImageURL,
		Date:     wire.Date,
		Location: wire.Location,
		Details: FishingDetails{
			Species: wire.Species,
			Size:    wire.Size,
			Length:  wire.Length,
			Method:  wire.Method,
		},
		Description: wire.Description,
		Likes:       nonNilLikes(wire.Likes),
		Comments:    nonNilComments(wire.Comments),
		CreatedAt:   timeValue(wire.CreatedAt),
		UpdatedAt:   timeValue(wire.UpdatedAt),
	}
}

func nonNilLikes(likes []string) []string {
	if likes == nil {
		return []string{}
	}
	return likes
}

func nonNilComments(comments []Comment) []Comment {
	if comments == nil {
		return []Comment{}
	}
	return comments
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	v := value
	return &v
}

func timeValue(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
