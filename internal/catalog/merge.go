package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
)

var protectedFields = map[string]struct{}{
	"id":        {},
	"userId":    {},
	"likes":     {},
	"comments":  {},
	"createdAt": {},
	"updatedAt": {},
}

// mergeFields overlays the top-level keys of overlay onto current encoded in the
// collection's wire shape. A type change without new details resets details to
// the new variant's defaults.
func mergeFields(collection adventures.Collection, current adventures.Adventure, overlay map[string]json.RawMessage) (adventures.Adventure, error) {
	base, err := collection.Marshal(current)
	if err != nil {
		return adventures.Adventure{}, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return adventures.Adventure{}, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	if rawKind, ok := overlay["type"]; ok {
		if _, hasDetails := overlay["details"]; !hasDetails {
			var kind string
			if err := json.Unmarshal(rawKind, &kind); err != nil {
				return adventures.Adventure{}, fmt.Errorf("%w: type: %v", ErrInvalidEntity, err)
			}
			if adventures.Kind(kind) != current.Kind() {
				fields["details"] = json.RawMessage("null")
			}
		}
	}

	for key, value := range overlay {
		if _, protected := protectedFields[key]; protected {
			continue
		}
		fields[key] = value
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return adventures.Adventure{}, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	entity, err := collection.Unmarshal(merged)
	if err != nil {
		return adventures.Adventure{}, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return entity, nil
}
