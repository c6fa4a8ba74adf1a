package api

import "errors"

// Sentinel errors returned by the OpenWeather client. Callers match them with
// errors.Is; any other error is wrapped around one of these.
var (
	// ErrCityNotFound means the provider has no match for the requested city.
	ErrCityNotFound = errors.New("api: city not found")

	// ErrUpstreamUnavailable means the provider failed or answered in a way
	// the caller cannot recover from.
	ErrUpstreamUnavailable = errors.New("api: upstream unavailable")
)
