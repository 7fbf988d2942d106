package adventures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Details is the activity-specific part of an Adventure.
type Details interface {
	Kind() Kind
}

// Unit is the verbatim unit attached to a Measurement.
type Unit string

const (
	UnitKilograms   Unit = "kg"
	UnitPounds      Unit = "lbs"
	UnitCentimeters Unit = "cm"
	UnitInches      Unit = "in"
	UnitMeters      Unit = "m"
	UnitFeet        Unit = "ft"
)

// Quantity selects which units a Measurement may carry.
type Quantity string

const (
	QuantityMass   Quantity = "mass"
	QuantityLength Quantity = "length"
	QuantityHeight Quantity = "height"
)

// Units returns the closed unit set for the quantity, default first.
func (q Quantity) Units() []Unit {
	switch q {
	case QuantityMass:
		return []Unit{UnitKilograms, UnitPounds}
	case QuantityLength:
		return []Unit{UnitCentimeters, UnitInches}
	case QuantityHeight:
		return []Unit{UnitMeters, UnitFeet}
	default:
		return nil
	}
}

// Allows reports whether unit belongs to the quantity's unit set.
func (q Quantity) Allows(unit Unit) bool {
	for _, candidate := range q.Units() {
		if candidate == unit {
			return true
		}
	}
	return false
}

// Measurement pairs a value with its unit. No conversion is ever applied.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// String renders "<value> <unit>".
func (m Measurement) String() string {
	return strconv.FormatFloat(m.Value, 'f', -1, 64) + " " + string(m.Unit)
}

type FishingMethodType string

const (
	FishingSpinning      FishingMethodType = "spinning"
	FishingFlyFishing    FishingMethodType = "fly-fishing"
	FishingBaitCasting   FishingMethodType = "bait-casting"
	FishingTrolling      FishingMethodType = "trolling"
	FishingBottomFishing FishingMethodType = "bottom-fishing"
	FishingOther         FishingMethodType = "other"
)

// FishingMethods lists the fishing method option set.
func FishingMethods() []FishingMethodType {
	return []FishingMethodType{FishingSpinning, FishingFlyFishing, FishingBaitCasting, FishingTrolling, FishingBottomFishing, FishingOther}
}

type HuntingMethodType string

const (
	HuntingBow          HuntingMethodType = "bow"
	HuntingRifle        HuntingMethodType = "rifle"
	HuntingShotgun      HuntingMethodType = "shotgun"
	HuntingMuzzleloader HuntingMethodType = "muzzleloader"
	HuntingOther        HuntingMethodType = "other"
)

// HuntingMethods lists the hunting method option set.
func HuntingMethods() []HuntingMethodType {
	return []HuntingMethodType{HuntingBow, HuntingRifle, HuntingShotgun, HuntingMuzzleloader, HuntingOther}
}

type ClimbingStyle string

const (
	ClimbingSport      ClimbingStyle = "sport"
	ClimbingTrad       ClimbingStyle = "trad"
	ClimbingBouldering ClimbingStyle = "bouldering"
	ClimbingAlpine     ClimbingStyle = "alpine"
	ClimbingIce        ClimbingStyle = "ice"
	ClimbingMixed      ClimbingStyle = "mixed"
)

// ClimbingStyles lists the climbing style option set.
func ClimbingStyles() []ClimbingStyle {
	return []ClimbingStyle{ClimbingSport, ClimbingTrad, ClimbingBouldering, ClimbingAlpine, ClimbingIce, ClimbingMixed}
}

type FishingMethod struct {
	Type FishingMethodType `json:"type"`
	Lure string            `json:"lure,omitempty"`
}

type HuntingMethod struct {
	Type   HuntingMethodType `json:"type"`
	Weapon string            `json:"weapon,omitempty"`
}

// FishingDetails describes a catch. Size is the fish's weight.
type FishingDetails struct {
	Species string        `json:"species"`
	Size    Measurement   `json:"size"`
	Length  Measurement   `json:"length"`
	Method  FishingMethod `json:"method"`
}

func (FishingDetails) Kind() Kind { return KindFishing }

type HuntingDetails struct {
	Species string        `json:"species"`
	Weight  Measurement   `json:"weight"`
	Method  HuntingMethod `json:"method"`
	Season  string        `json:"season"`
}

func (HuntingDetails) Kind() Kind { return KindHunting }

type ClimbingDetails struct {
	RouteName   string        `json:"routeName"`
	Grade       string        `json:"grade"`
	Style       ClimbingStyle `json:"style"`
	Height      Measurement   `json:"height"`
	FirstAscent bool          `json:"firstAscent"`
	Partners    []string      `json:"partners,omitempty"`
}

func (ClimbingDetails) Kind() Kind { return KindClimbing }

// DefaultDetails returns the blank shape of the variant selected by kind.
func DefaultDetails(kind Kind) (Details, error) {
	switch kind {
	case KindFishing:
		return FishingDetails{
			Size:   Measurement{Unit: UnitKilograms},
			Length: Measurement{Unit: UnitCentimeters},
			Method: FishingMethod{Type: FishingSpinning},
		}, nil
	case KindHunting:
		return HuntingDetails{
			Weight: Measurement{Unit: UnitKilograms},
			Method: HuntingMethod{Type: HuntingBow},
		}, nil
	case KindClimbing:
		return ClimbingDetails{
			Style:  ClimbingSport,
			Height: Measurement{Unit: UnitMeters},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeDetails(kind Kind, raw json.RawMessage) (Details, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return DefaultDetails(kind)
	}
	switch kind {
	case KindFishing:
		var details FishingDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, err
		}
		return details, nil
	case KindHunting:
		var details HuntingDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, err
		}
		return details, nil
	case KindClimbing:
		var details ClimbingDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, err
		}
		return details, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
