package store

import "github.com/google/uuid"

// randomProfileName generates a default profile name when CreateProfile
// is called without one, mirroring the original source's
// random_profile_name (there backed by a random hex string; here backed
// by a UUIDv4, which the rest of the pack already depends on).
func randomProfileName() string {
	return uuid.NewString()
}
