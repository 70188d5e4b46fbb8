// Package keys validates bind keys and maps devices to their decryption
// material. Keys are held in memory only.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"scale-scanner.klederson.com/internal/beacon"
)

var (
	ErrKeyLength   = errors.New("bind key must be 32 hex characters")
	ErrKeyEncoding = errors.New("bind key is not valid hex")
)

// Parse decodes a 32-character hex bind key.
func Parse(s string) ([beacon.KeySize]byte, error) {
	var key [beacon.KeySize]byte
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(beacon.KeySize) {
		return key, fmt.Errorf("%w: got %d", ErrKeyLength, len(s))
	}
	if _, err := hex.Decode(key[:], []byte(s)); err != nil {
		return key, fmt.Errorf("%w: %v", ErrKeyEncoding, err)
	}
	return key, nil
}

// NormalizeID folds a device identifier for lookups. Hardware addresses
// compare case-insensitively with either separator; opaque platform handles
// are only lower-cased.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if _, err := beacon.ParseAddress(id); err == nil {
		return strings.ReplaceAll(id, "-", ":")
	}
	return id
}

// Keyring maps device ids to decryption contexts. Safe for concurrent use.
type Keyring struct {
	mu       sync.RWMutex
	contexts map[string]beacon.DecryptionContext
	fallback *beacon.DecryptionContext
}

func NewKeyring() *Keyring {
	return &Keyring{contexts: make(map[string]beacon.DecryptionContext)}
}

// Add registers hexKey for deviceID. When deviceID is a hardware address it
// also becomes the nonce address for frames that do not embed one. An empty
// deviceID sets the key tried for every device without its own entry.
func (k *Keyring) Add(deviceID, hexKey string) error {
	key, err := Parse(hexKey)
	if err != nil {
		return fmt.Errorf("device %q: %w", deviceID, err)
	}
	ctx := beacon.DecryptionContext{Key: &key}
	if addr, err := beacon.ParseAddress(deviceID); err == nil {
		ctx.Address = &addr
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if strings.TrimSpace(deviceID) == "" {
		k.fallback = &ctx
		return nil
	}
	k.contexts[NormalizeID(deviceID)] = ctx
	return nil
}

// Lookup returns the context for deviceID. A device without an entry gets
// the fallback key, with its own id as the nonce address when it parses.
func (k *Keyring) Lookup(deviceID string) (beacon.DecryptionContext, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if ctx, ok := k.contexts[NormalizeID(deviceID)]; ok {
		return ctx, true
	}
	if k.fallback == nil {
		return beacon.DecryptionContext{}, false
	}
	ctx := *k.fallback
	if addr, err := beacon.ParseAddress(deviceID); err == nil {
		ctx.Address = &addr
	}
	return ctx, true
}

func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	n := len(k.contexts)
	if k.fallback != nil {
		n++
	}
	return n
}
