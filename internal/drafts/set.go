package drafts

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
)

// Set assigns a form value by its field path, e.g. "location.name" or
// "details.size.value". Setting "type" switches the variant.
func (d *Draft) Set(path, value string) error {
	switch path {
	case "type":
		kind, err := adventures.ParseKind(value)
		if err != nil {
			return err
		}
		return d.SetKind(kind)
	case "userId":
		d.UserID = value
	case "imageUrl":
		d.ImageURL = value
	case "date":
		d.Date = strings.TrimSpace(value)
	case "description":
		d.Description = value
	case "location.name":
		d.Location.Name = value
	case "location.coordinates.lat":
		return setNumber(path, value, &d.Location.Coordinates.Lat)
	case "location.coordinates.lng":
		return setNumber(path, value, &d.Location.Coordinates.Lng)
	case "location.elevation":
		if strings.TrimSpace(value) == "" {
			d.Location.Elevation = nil
			return nil
		}
		var elevation float64
		if err := setNumber(path, value, &elevation); err != nil {
			return err
		}
		d.Location.Elevation = &elevation
	default:
		field, ok := strings.CutPrefix(path, "details.")
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, path)
		}
		return d.setDetail(path, field, value)
	}
	return nil
}

func (d *Draft) setDetail(path, field, value string) error {
	switch {
	case d.Fishing != nil:
		return d.Fishing.set(path, field, value)
	case d.Hunting != nil:
		return d.Hunting.set(path, field, value)
	case d.Climbing != nil:
		return d.Climbing.set(path, field, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
}

func (f *FishingDraft) set(path, field, value string) error {
	switch field {
	case "species":
		f.Species = value
	case "size.value":
		return setNumber(path, value, &f.Size.Value)
	case "size.unit":
		f.Size.Unit = adventures.Unit(value)
	case "length.value":
		return setNumber(path, value, &f.Length.Value)
	case "length.unit":
		f.Length.Unit = adventures.Unit(value)
	case "method.type":
		f.Method.Type = adventures.FishingMethodType(value)
	case "method.lure":
		f.Method.Lure = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	return nil
}

func (h *HuntingDraft) set(path, field, value string) error {
	switch field {
	case "species":
		h.Species = value
	case "weight.value":
		return setNumber(path, value, &h.Weight.Value)
	case "weight.unit":
		h.Weight.Unit = adventures.Unit(value)
	case "method.type":
		h.Method.Type = adventures.HuntingMethodType(value)
	case "method.weapon":
		h.Method.Weapon = value
	case "season":
		h.Season = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	return nil
}

func (c *ClimbingDraft) set(path, field, value string) error {
	switch field {
	case "routeName":
		c.RouteName = value
	case "grade":
		c.Grade = value
	case "style":
		c.Style = adventures.ClimbingStyle(value)
	case "height.value":
		return setNumber(path, value, &c.Height.Value)
	case "height.unit":
		c.Height.Unit = adventures.Unit(value)
	case "firstAscent":
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, path, err)
		}
		c.FirstAscent = parsed
	case "partners":
		c.Partners = ParsePartners(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	return nil
}

// Empty numeric input reads as zero so that validation reports it rather than Set.
func setNumber(path, value string, target *float64) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		*target = 0
		return nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, path, err)
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return fmt.Errorf("%w: %s: %q is not a finite number", ErrInvalidValue, path, trimmed)
	}
	*target = parsed
	return nil
}
