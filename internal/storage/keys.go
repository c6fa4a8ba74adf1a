package storage

import (
	"fmt"
	"strings"
	"time"
)

const artifactExt = ".json"

// ArtifactPrefix is the listing prefix shared by every artifact of a city.
func ArtifactPrefix(city string) string {
	return city + "_"
}

// ArtifactKey names the artifact of city created at ts: {city}_{unix}.json.
func ArtifactKey(city string, ts time.Time) string {
	return fmt.Sprintf("%s%d%s", ArtifactPrefix(city), ts.Unix(), artifactExt)
}

// IsArtifactKey reports whether key is {prefix}{digits}.json. Listing by
// prefix alone would let "york_" match "york_county_1700000000.json".
func IsArtifactKey(prefix, key string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return false
	}
	digits, ok := strings.CutSuffix(rest, artifactExt)
	if !ok || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
