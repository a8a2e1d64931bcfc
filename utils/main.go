package utils

import (
	"regexp"
	"strings"
)

// usernameSuffixRegexp matches the domain portion of a fully qualified username.
var usernameSuffixRegexp = regexp.MustCompile("@.*$")

// RemoveUsernameSuffix removes the suffix from a username so that the same quota record is used no matter which
// product the request came from. When no suffix is configured, any domain portion of the username is removed.
func RemoveUsernameSuffix(username, suffix string) string {
	if suffix != "" {
		return strings.TrimSuffix(username, suffix)
	}
	return usernameSuffixRegexp.ReplaceAllString(username, "")
}
