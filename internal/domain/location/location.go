package location

import (
	"fmt"
	"strings"
)

// UnavailableText is the sentence used when no provider produced a usable result.
const UnavailableText = "Current location unavailable."

// Result is a resolved location. The zero value is not usable; use
// Unavailable() for the sentinel.
type Result struct {
	City           string  `json:"city,omitempty"`
	Region         string  `json:"region,omitempty"`
	Country        string  `json:"country,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	HasCoordinates bool    `json:"has_coordinates,omitempty"`
	Sentence       string  `json:"sentence"`
	Provider       string  `json:"provider,omitempty"`
	Available      bool    `json:"available"`
}

func Unavailable() Result {
	return Result{Sentence: UnavailableText}
}

// Describe renders "You are in {city}, {region}, {country}" and appends the
// coordinates when known. Empty and repeated parts are skipped.
func Describe(r Result) string {
	parts := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, p := range []string{r.City, r.Region, r.Country} {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return UnavailableText
	}

	sentence := "You are in " + strings.Join(parts, ", ")
	if r.HasCoordinates {
		sentence += fmt.Sprintf(". Coordinates: %.4f, %.4f", r.Latitude, r.Longitude)
	}
	return sentence
}
