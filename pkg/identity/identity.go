// Package identity provides the process-wide client identifier a node uses
// to tag the orders it originates and to recognise its own broadcasts.
package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Identity struct {
	ClientID  string
	StartedAt time.Time
}

// Generate returns a fresh random (v4) identity.
func Generate() Identity {
	return Identity{ClientID: uuid.NewString(), StartedAt: time.Now()}
}

// FromString pins the identity to an existing client id, for deployments
// that want stable ids. The id must be a UUID.
func FromString(id string) (Identity, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, fmt.Errorf("client id %q: %w", id, err)
	}
	return Identity{ClientID: u.String(), StartedAt: time.Now()}, nil
}

// Owns reports whether client is this identity.
func (id Identity) Owns(client string) bool {
	return client != "" && client == id.ClientID
}

func (id Identity) String() string { return id.ClientID }
