// Package idgen generates short, URL-safe identifiers backed by nanoid:
// broadcast subscription handles and export run ids.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the kinds of id handed out.
const (
	SubscriptionPrefix = "sub-"
	ExportPrefix       = "exp-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Subscription returns a new subscription handle id.
func Subscription() (string, error) {
	return GenerateWithPrefix(SubscriptionPrefix)
}

// Export returns a new export run id.
func Export() (string, error) {
	return GenerateWithPrefix(ExportPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
