package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewUUID returns a random v4 UUID for database primary keys.
func NewUUID() string {
	return uuid.NewString()
}

// NewID returns a prefixed opaque identifier such as "jti_<hex>".
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// IsUUID reports whether value parses as a UUID.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
