package auth

import "strings"

var sanitizer = strings.NewReplacer(
	"<", "", ">", "", `"`, "", "'", "", "&", "", ";", "",
	"(", "", ")", "", "[", "", "]", "", "{", "", "}", "",
)

// Sanitize removes characters commonly used in markup or script injection
// and trims surrounding whitespace.
func Sanitize(input string) string {
	return strings.TrimSpace(sanitizer.Replace(input))
}
