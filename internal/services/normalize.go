package services

import "strings"

// NormalizeCity derives the entity key of a free-form city name: split on
// commas, trim each part, join with "_", lower-case and replace spaces with
// "_". "New York, US" becomes "new_york_us".
func NormalizeCity(city string) string {
	parts := strings.Split(city, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	key := strings.ToLower(strings.Join(parts, "_"))
	return strings.ReplaceAll(key, " ", "_")
}
