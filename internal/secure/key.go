package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed key is used.
var ErrDestroyed = errors.New("key material destroyed")

// Key holds sealed key material.
type Key struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// Seal moves data into an encrypted enclave. The source slice is wiped.
func Seal(data []byte) *Key {
	k := &Key{size: len(data)}
	if len(data) > 0 {
		k.enclave = memguard.NewEnclave(data)
	}
	return k
}

// SealString seals a copy of s.
func SealString(s string) *Key {
	return Seal([]byte(s))
}

// Size returns the plaintext length.
func (k *Key) Size() int {
	return k.size
}

// Empty reports whether no key material was sealed.
func (k *Key) Empty() bool {
	return k == nil || k.size == 0
}

// Open decrypts the key into a locked buffer. The caller must Destroy it.
func (k *Key) Open() (*memguard.LockedBuffer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return nil, ErrDestroyed
	}
	if k.enclave == nil {
		return memguard.NewBuffer(0), nil
	}
	return k.enclave.Open()
}

// WithBytes calls fn with the plaintext, which is wiped when fn returns.
// fn must not retain the slice.
func (k *Key) WithBytes(fn func([]byte) error) error {
	locked, err := k.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy drops the enclave. It is safe to call more than once and on a
// nil key.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	k.enclave = nil
	k.destroyed = true
}
