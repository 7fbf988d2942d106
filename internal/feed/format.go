package feed

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
)

const displayDateLayout = "Jan 2, 2006"

// FormatDate renders an activity date as "May 1, 2024".
func FormatDate(date adventures.Date) string {
	if date.IsZero() {
		return ""
	}
	return date.Format(displayDateLayout)
}

// FormatTimestamp renders a server timestamp with the same layout as FormatDate.
func FormatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(displayDateLayout)
}

// FormatOption capitalizes each hyphenated token: "fly-fishing" becomes "Fly Fishing".
func FormatOption(value string) string {
	words := strings.Split(value, "-")
	for index, word := range words {
		if word == "" {
			continue
		}
		words[index] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// FormatMethod renders the method label of an entity's details, with the lure or
// weapon appended when present. Climbing entries report their style.
func FormatMethod(details adventures.Details) string {
	switch typed := details.(type) {
	case adventures.FishingDetails:
		return withQualifier(FormatOption(string(typed.Method.Type)), typed.Method.Lure)
	case adventures.HuntingDetails:
		return withQualifier(FormatOption(string(typed.Method.Type)), typed.Method.Weapon)
	case adventures.ClimbingDetails:
		return FormatOption(string(typed.Style))
	default:
		return ""
	}
}

func withQualifier(label, qualifier string) string {
	if strings.TrimSpace(qualifier) == "" {
		return label
	}
	return label + " - " + qualifier
}

// Title is the headline of a card: the species, or the route for climbs.
func Title(entity adventures.Adventure) string {
	switch typed := entity.Details.(type) {
	case adventures.FishingDetails:
		return typed.Species
	case adventures.HuntingDetails:
		return typed.Species
	case adventures.ClimbingDetails:
		if typed.RouteName != "" {
			return typed.RouteName + " (" + typed.Grade + ")"
		}
		return typed.Grade
	default:
		return ""
	}
}

// Facts lists the category-specific values shown on a card, units verbatim.
func Facts(entity adventures.Adventure) []string {
	switch typed := entity.Details.(type) {
	case adventures.FishingDetails:
		return []string{"Weight " + typed.Size.String(), "Length " + typed.Length.String(), FormatMethod(typed)}
	case adventures.HuntingDetails:
		facts := []string{"Weight " + typed.Weight.String(), FormatMethod(typed)}
		if typed.Season != "" {
			facts = append(facts, "Season "+typed.Season)
		}
		return facts
	case adventures.ClimbingDetails:
		facts := []string{"Grade " + typed.Grade, "Height " + typed.Height.String(), FormatMethod(typed)}
		if typed.FirstAscent {
			facts = append(facts, "First ascent")
		}
		if len(typed.Partners) > 0 {
			facts = append(facts, "With "+strings.Join(typed.Partners, ", "))
		}
		return facts
	default:
		return nil
	}
}
