package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered id. Purchase ids double as the
// gateway external reference, so they must be globally unique and sortable
// by creation time.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
