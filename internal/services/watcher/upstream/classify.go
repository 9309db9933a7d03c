package upstream

import (
	"bytes"

	"github.com/tidwall/gjson"
)

type errorMarker struct {
	needle []byte
	flag   string
}

// errorMarkers are fragments of the HTML pages the upstream proxy serves in
// place of JSON when it is throttling or down.
var errorMarkers = []errorMarker{
	{needle: []byte("<title>429 Too Many Requests</title>"), flag: FlagRateLimited},
	{needle: []byte("<h1>429 Too Many Requests</h1>"), flag: FlagRateLimited},
	{needle: []byte("You have been rate limited"), flag: FlagRateLimited},
	{needle: []byte("<title>500 Internal Server Error</title>"), flag: FlagServerError},
	{needle: []byte("<title>502 Bad Gateway</title>"), flag: FlagServerError},
	{needle: []byte("<title>503 Service Unavailable</title>"), flag: FlagServerError},
	{needle: []byte("<title>504 Gateway Time-out</title>"), flag: FlagServerError},
	{needle: []byte("Automated backups are currently executing"), flag: FlagServerError},
	{needle: []byte("currently undergoing maintenance"), flag: FlagServerError},
}

// loggedOutMessages are envelope messages that mean the session cookies no
// longer authenticate.
var loggedOutMessages = []string{
	"You must be logged-in to do that.",
	"Unauthorized",
}

// CheckError inspects a raw response body and returns the structured upstream
// error it represents, or nil when the body should be decoded normally.
// Ordinary envelope errors such as "Thread not found" are not flagged here.
func CheckError(body []byte) *Error {
	for _, marker := range errorMarkers {
		if bytes.Contains(body, marker.needle) {
			return &Error{Flag: marker.flag}
		}
	}
	if !gjson.ValidBytes(body) {
		return nil
	}
	envelope := gjson.ParseBytes(body)
	if envelope.Get("status").String() != "error" {
		return nil
	}
	msg := envelope.Get("msg").String()
	for _, loggedOut := range loggedOutMessages {
		if msg == loggedOut {
			return &Error{Flag: FlagLoggedOut}
		}
	}
	return nil
}
