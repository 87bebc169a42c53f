package weather

import "fmt"

// codeRule maps an inclusive WMO code range to a descriptive label.
// Single codes use lo == hi.
type codeRule struct {
	lo, hi int
	label  string
}

// Rules are checked in order; exact codes come before ranges and the first
// match wins.
var codeRules = []codeRule{
	{0, 0, "Clear sky"},
	{1, 1, "Mostly clear"},
	{2, 2, "Partly cloudy"},
	{3, 3, "Overcast"},
	{45, 45, "Fog or Rime fog"},
	{48, 48, "Fog or Rime fog"},
	{51, 55, "Drizzle (Light to Dense)"},
	{56, 57, "Freezing Drizzle"},
	{61, 65, "Rain (Slight to Heavy)"},
	{66, 67, "Freezing Rain"},
	{80, 82, "Rain showers (Slight to Violent)"},
	{85, 86, "Snow showers (Slight to Heavy)"},
	{95, 95, "Thunderstorm (Slight or Moderate)"},
	{96, 99, "Thunderstorm with hail"},
}

// DecodeWeatherCode translates an Open-Meteo WMO weather code into a human
// label. Unmatched codes fall back to a label that preserves the raw code.
func DecodeWeatherCode(code int) string {
	for _, r := range codeRules {
		if code >= r.lo && code <= r.hi {
			return r.label
		}
	}
	return fmt.Sprintf("Conditions Varies (WMO Code %d)", code)
}
