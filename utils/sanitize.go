package utils

import "github.com/microcosm-cc/bluemonday"

// Posts are plain text updates; strip any markup entirely.
var sanitizer = bluemonday.StrictPolicy()

// Sanitize removes HTML from user supplied text.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
