package auth

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

var base64Pattern = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{4}|[A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{2}==)$`)

// LooksEncoded reports whether s has the shape of standard base64. It is a
// guess: plenty of plain passwords ("password", "hunter42") also match, so it
// only decides whether a value still needs encoding before it is saved.
func LooksEncoded(s string) bool {
	return base64Pattern.MatchString(s)
}

// EncodePassword base64 encodes a plain password
func EncodePassword(plain string) string {
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// DecodePassword reverses EncodePassword
func DecodePassword(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: password is not valid base64", ErrInvalidCredentials)
	}
	return string(b), nil
}

// EncodeIfNeeded encodes pw unless it already looks encoded
func EncodeIfNeeded(pw string) string {
	if LooksEncoded(pw) {
		return pw
	}
	return EncodePassword(pw)
}

// ResolvePassword returns the plain password from a configured value and
// its encoded flag
func ResolvePassword(pw string, encoded bool) (string, error) {
	if !encoded {
		return pw, nil
	}
	return DecodePassword(pw)
}
