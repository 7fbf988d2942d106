// Package drafts collects entity-shaped input, switches the active details
// variant on discriminator changes and validates the result before submission.
package drafts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
)

var (
	// ErrInvalidDraft is wrapped by every draft validation failure.
	ErrInvalidDraft = errors.New("drafts: invalid draft")
	// ErrUnknownField indicates a field path the active variant does not define.
	ErrUnknownField = errors.New("drafts: unknown field")
	// ErrInvalidValue indicates a value that cannot be converted to the field's type.
	ErrInvalidValue = errors.New("drafts: invalid value")
)

// MassDraft is a mass measurement input.
type MassDraft struct {
	Value float64         `form:"value" validate:"finite,gt=0"`
	Unit  adventures.Unit `form:"unit" validate:"oneof=kg lbs"`
}

// LengthDraft is a length measurement input.
type LengthDraft struct {
	Value float64         `form:"value" validate:"finite,gt=0"`
	Unit  adventures.Unit `form:"unit" validate:"oneof=cm in"`
}

// HeightDraft is a height measurement input.
type HeightDraft struct {
	Value float64         `form:"value" validate:"finite,gt=0"`
	Unit  adventures.Unit `form:"unit" validate:"oneof=m ft"`
}

type FishingMethodDraft struct {
	Type adventures.FishingMethodType `form:"type" validate:"oneof=spinning fly-fishing bait-casting trolling bottom-fishing other"`
	Lure string                       `form:"lure"`
}

type HuntingMethodDraft struct {
	Type   adventures.HuntingMethodType `form:"type" validate:"oneof=bow rifle shotgun muzzleloader other"`
	Weapon string                       `form:"weapon"`
}

type FishingDraft struct {
	Species string             `form:"species" validate:"required"`
	Size    MassDraft          `form:"size"`
	Length  LengthDraft        `form:"length"`
	Method  FishingMethodDraft `form:"method"`
}

type HuntingDraft struct {
	Species string             `form:"species" validate:"required"`
	Weight  MassDraft          `form:"weight"`
	Method  HuntingMethodDraft `form:"method"`
	Season  string             `form:"season"`
}

type ClimbingDraft struct {
	RouteName   string                   `form:"routeName"`
	Grade       string                   `form:"grade" validate:"required"`
	Style       adventures.ClimbingStyle `form:"style" validate:"oneof=sport trad bouldering alpine ice mixed"`
	Height      HeightDraft              `form:"height"`
	FirstAscent bool                     `form:"firstAscent"`
	Partners    []string                 `form:"partners"`
}

type CoordinatesDraft struct {
	Lat float64 `form:"lat" validate:"finite,min=-90,max=90"`
	Lng float64 `form:"lng" validate:"finite,min=-180,max=180"`
}

type LocationDraft struct {
	Name        string           `form:"name" validate:"required"`
	Coordinates CoordinatesDraft `form:"coordinates"`
	Elevation   *float64         `form:"elevation" validate:"omitempty,finite"`
}

// Draft is an entity pending submission. Exactly one of the variant sub-drafts is set,
// matching Kind.
type Draft struct {
	UserID      string          `form:"userId"`
	Kind        adventures.Kind `form:"type" validate:"oneof=fishing hunting climbing"`
	ImageURL    string          `form:"imageUrl"`
	Date        string          `form:"date" validate:"omitempty,calendar_date"`
	Location    LocationDraft   `form:"location"`
	Description string          `form:"description"`
	Fishing     *FishingDraft   `form:"details"`
	Hunting     *HuntingDraft   `form:"details"`
	Climbing    *ClimbingDraft  `form:"details"`
}

// Submission is a validated draft plus the image selected alongside it.
type Submission struct {
	Adventure adventures.Adventure
	Image     *images.File
}

// New returns a blank draft for kind with that variant's default details.
func New(kind adventures.Kind) (*Draft, error) {
	draft := &Draft{}
	if err := draft.SetKind(kind); err != nil {
		return nil, err
	}
	return draft, nil
}

// SetKind switches the discriminator. The details sub-draft is reset to the new
// variant's defaults, so no field of the previous variant survives.
func (d *Draft) SetKind(kind adventures.Kind) error {
	defaults, err := adventures.DefaultDetails(kind)
	if err != nil {
		return err
	}
	d.Kind = kind
	d.Fishing, d.Hunting, d.Climbing = nil, nil, nil
	d.setDetails(defaults)
	return nil
}

func (d *Draft) setDetails(details adventures.Details) {
	switch typed := details.(type) {
	case adventures.FishingDetails:
		d.Fishing = &FishingDraft{
			Species: typed.Species,
			Size:    MassDraft{Value: typed.Size.Value, Unit: typed.Size.Unit},
			Length:  LengthDraft{Value: typed.Length.Value, Unit: typed.Length.Unit},
			Method:  FishingMethodDraft{Type: typed.Method.Type, Lure: typed.Method.Lure},
		}
	case adventures.HuntingDetails:
		d.Hunting = &HuntingDraft{
			Species: typed.Species,
			Weight:  MassDraft{Value: typed.Weight.Value, Unit: typed.Weight.Unit},
			Method:  HuntingMethodDraft{Type: typed.Method.Type, Weapon: typed.Method.Weapon},
			Season:  typed.Season,
		}
	case adventures.ClimbingDetails:
		d.Climbing = &ClimbingDraft{
			RouteName:   typed.RouteName,
			Grade:       typed.Grade,
			Style:       typed.Style,
			Height:      HeightDraft{Value: typed.Height.Value, Unit: typed.Height.Unit},
			FirstAscent: typed.FirstAscent,
			Partners:    append([]string(nil), typed.Partners...),
		}
	}
}

// FromAdventure pre-fills a draft from an existing entity for editing.
func FromAdventure(adventure adventures.Adventure) (*Draft, error) {
	if adventure.Details == nil {
		return nil, fmt.Errorf("%w: missing details", adventures.ErrUnknownKind)
	}
	draft := &Draft{
		UserID:   adventure.UserID,
		Kind:     adventure.Kind(),
		ImageURL: adventure.ImageURL,
		Date:     adventure.Date.String(),
		Location: LocationDraft{
			Name:        adventure.Location.Name,
			Coordinates: CoordinatesDraft{Lat: adventure.Location.Coordinates.Lat, Lng: adventure.Location.Coordinates.Lng},
			Elevation:   adventure.Location.Elevation,
		},
		Description: adventure.Description,
	}
	draft.setDetails(adventure.Details)
	return draft, nil
}

// Details converts the active sub-draft into entity details.
func (d *Draft) Details() (adventures.Details, error) {
	switch d.Kind {
	case adventures.KindFishing:
		if d.Fishing == nil {
			break
		}
		return adventures.FishingDetails{
			Species: strings.TrimSpace(d.Fishing.Species),
			Size:    adventures.Measurement{Value: d.Fishing.Size.Value, Unit: d.Fishing.Size.Unit},
			Length:  adventures.Measurement{Value: d.Fishing.Length.Value, Unit: d.Fishing.Length.Unit},
			Method:  adventures.FishingMethod{Type: d.Fishing.Method.Type, Lure: strings.TrimSpace(d.Fishing.Method.Lure)},
		}, nil
	case adventures.KindHunting:
		if d.Hunting == nil {
			break
		}
		return adventures.HuntingDetails{
			Species: strings.TrimSpace(d.Hunting.Species),
			Weight:  adventures.Measurement{Value: d.Hunting.Weight.Value, Unit: d.Hunting.Weight.Unit},
			Method:  adventures.HuntingMethod{Type: d.Hunting.Method.Type, Weapon: strings.TrimSpace(d.Hunting.Method.Weapon)},
			Season:  strings.TrimSpace(d.Hunting.Season),
		}, nil
	case adventures.KindClimbing:
		if d.Climbing == nil {
			break
		}
		return adventures.ClimbingDetails{
			RouteName:   strings.TrimSpace(d.Climbing.RouteName),
			Grade:       strings.TrimSpace(d.Climbing.Grade),
			Style:       d.Climbing.Style,
			Height:      adventures.Measurement{Value: d.Climbing.Height.Value, Unit: d.Climbing.Height.Unit},
			FirstAscent: d.Climbing.FirstAscent,
			Partners:    append([]string(nil), d.Climbing.Partners...),
		}, nil
	}
	return nil, fmt.Errorf("%w: no %q details", ErrInvalidDraft, d.Kind)
}

// Adventure converts the draft into an entity draft without validating it.
func (d *Draft) Adventure() (adventures.Adventure, error) {
	details, err := d.Details()
	if err != nil {
		return adventures.Adventure{}, err
	}
	date, err := adventures.ParseDate(d.Date)
	if err != nil {
		return adventures.Adventure{}, err
	}
	return adventures.Adventure{
		UserID:      strings.TrimSpace(d.UserID),
		ImageURL:    strings.TrimSpace(d.ImageURL),
		Date:        date,
		Location:    d.location(),
		Details:     details,
		Description: d.Description,
		Likes:       []string{},
		Comments:    []adventures.Comment{},
	}, nil
}

// Patch converts the draft into a partial update carrying every form field.
func (d *Draft) Patch() (adventures.Patch, error) {
	adventure, err := d.Adventure()
	if err != nil {
		return adventures.Patch{}, err
	}
	location := adventure.Location
	description := adventure.Description
	patch := adventures.Patch{
		Location:    &location,
		Details:     adventure.Details,
		Description: &description,
	}
	if adventure.ImageURL != "" {
		imageURL := adventure.ImageURL
		patch.ImageURL = &imageURL
	}
	if !adventure.Date.IsZero() {
		date := adventure.Date
		patch.Date = &date
	}
	return patch, nil
}

// Submit validates the draft and pairs it with the selected image, if any.
func (d *Draft) Submit(image *images.File) (Submission, error) {
	if err := d.Validate(); err != nil {
		return Submission{}, err
	}
	adventure, err := d.Adventure()
	if err != nil {
		return Submission{}, err
	}
	return Submission{Adventure: adventure, Image: image}, nil
}

func (d *Draft) location() adventures.Location {
	return adventures.Location{
		Name: strings.TrimSpace(d.Location.Name),
		Coordinates: adventures.Coordinates{
			Lat: d.Location.Coordinates.Lat,
			Lng: d.Location.Coordinates.Lng,
		},
		Elevation: d.Location.Elevation,
	}
}

// ParsePartners splits a comma separated partner list, dropping blanks.
func ParsePartners(rawInput string) []string {
	partners := make([]string, 0)
	for _, partner := range strings.Split(rawInput, ",") {
		if trimmed := strings.TrimSpace(partner); trimmed != "" {
			partners = append(partners, trimmed)
		}
	}
	return partners
}
