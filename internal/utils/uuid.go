// Package utils holds small helpers with no better home.
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewUuidWoDashes returns a random uuid with the dash separators stripped,
// fit for compact identifiers such as Kafka client ids.
func NewUuidWoDashes() string {
	return strings.Replace(uuid.New().String(), "-", "", -1)
}
