package handlers

import (
	"encoding/json"
	"net/http"

	"weather-cache/internal/models"
)

// Messages returned to clients. Failure details only go to the log.
const (
	MsgCityRequired       = "city query parameter is required"
	MsgCityNotFound       = "City not found. Either your city is not on our maps or you are using the wrong city name."
	MsgSomethingWentWrong = "Something went wrong, please try again later"
	MsgServiceUnavailable = "Service Unavailable, please try again later"
)

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteError writes {"message": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(models.ErrorResponse{Message: msg})
	writeRaw(w, status, body)
}
