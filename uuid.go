package dispatch

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"
	"github.com/oklog/ulid"
)

// NewUUID returns a new UUID Version 4.
// It is the default generator of message ids.
func NewUUID() string {
	return uuid.New().String()
}

// NewShortUUID returns a new short UUID. Endpoints and subscribers without a name get one.
func NewShortUUID() string {
	return shortuuid.New()
}

var (
	ulidEntropy     = ulid.Monotonic(rand.Reader, 0)
	ulidEntropyLock sync.Mutex
)

// NewULID returns a new ULID.
// ULIDs generated by one process sort in the order of creation, so do the consumers named with them.
func NewULID() string {
	ulidEntropyLock.Lock()
	defer ulidEntropyLock.Unlock()

	return ulid.MustNew(ulid.Now(), ulidEntropy).String()
}
