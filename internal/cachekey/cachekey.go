// Package cachekey derives the content address shared by both cache tiers
// and the durable object names.
package cachekey

import (
	"crypto/md5" // #nosec G501 -- content addressing, not a security boundary
	"encoding/hex"
)

const (
	objectPrefix   = "speech/"
	audioExtension = ".mp3"
	marksExtension = ".json"
)

// Key is the lowercase hex digest of a synthesis input.
type Key string

// Derive hashes the UTF-8 bytes of input.
func Derive(input string) Key {
	sum := md5.Sum([]byte(input)) // #nosec G401

	return Key(hex.EncodeToString(sum[:]))
}

// String returns the key as stored in the ephemeral tier.
func (k Key) String() string {
	return string(k)
}

// AudioPath is the durable object holding the audio for k.
func (k Key) AudioPath() string {
	return AudioPath(string(k))
}

// MarksPath is the durable object holding the speech marks for k.
func (k Key) MarksPath() string {
	return MarksPath(string(k))
}

// AudioPath returns the audio object name for an id.
func AudioPath(id string) string {
	return objectPrefix + id + audioExtension
}

// MarksPath returns the speech marks object name for an id.
func MarksPath(id string) string {
	return objectPrefix + id + marksExtension
}
