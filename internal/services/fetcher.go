package services

import (
	"context"
	"encoding/json"
)

// Fetcher retrieves a fresh weather document from the provider.
// *api.OpenWeatherClient satisfies it.
type Fetcher interface {
	GetCityWeather(ctx context.Context, city string) (json.RawMessage, error)
	Close()
}
