// Package ratchet implements the optional per-agent Double Ratchet channel
// described in §4.10: a root/send/recv chain triple per agent, X25519 DH
// ratchet steps, HKDF-SHA256 chain-key derivation, and AES-256-GCM message
// encryption. It is the encrypted-transport counterpart to plaintext
// JSON-RPC; the router falls back to plaintext whenever a frame's
// "encrypted" field is absent or false.
package ratchet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryptFailed is returned for any ciphertext that fails to decrypt,
// deliberately without distinguishing malformed input from a wrong key —
// per §4.10 the router cannot tell the two apart and reports both as
// JSON-RPC -32700.
var ErrDecryptFailed = errors.New("ratchet: decryption failed")

const (
	keySize        = 32
	nonceSize      = 12
	skippedKeysMax = 64
)

// Header is the wire ratchet_header object accompanying each ciphertext.
type Header struct {
	DHPublicKey     [32]byte `json:"dh_public_key"`
	PreviousCounter int      `json:"previous_counter"`
	MessageCounter  int      `json:"message_counter"`
}

// Envelope is the encrypted JSON-RPC frame shape from §4.10.
type Envelope struct {
	JSONRPC       string `json:"jsonrpc"`
	Encrypted     bool   `json:"encrypted"`
	Ciphertext    []byte `json:"ciphertext"`
	IV            []byte `json:"iv"`
	RatchetHeader Header `json:"ratchet_header"`
}

// IsEncrypted reports whether raw looks like an encrypted envelope rather
// than plaintext JSON-RPC, used by the router to decide whether to involve
// the ratchet at all.
func IsEncrypted(raw []byte) bool {
	var probe struct {
		Encrypted bool `json:"encrypted"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Encrypted
}

type skippedKey struct {
	header Header
	key    [keySize]byte
}

// chain is one ratcheting symmetric chain (send or receive).
type chain struct {
	key     [keySize]byte
	counter int
}

// advance derives the next message key and rotates the chain key in place,
// per the HKDF-based symmetric-ratchet step.
func (c *chain) advance() ([keySize]byte, error) {
	reader := hkdf.New(newSHA256, c.key[:], nil, []byte("chessmcp-ratchet-msg"))
	var msgKey [keySize]byte
	if _, err := io.ReadFull(reader, msgKey[:]); err != nil {
		return msgKey, fmt.Errorf("ratchet: deriving message key: %w", err)
	}

	reader2 := hkdf.New(newSHA256, c.key[:], nil, []byte("chessmcp-ratchet-chain"))
	var nextKey [keySize]byte
	if _, err := io.ReadFull(reader2, nextKey[:]); err != nil {
		return msgKey, fmt.Errorf("ratchet: rotating chain key: %w", err)
	}
	c.key = nextKey
	c.counter++
	return msgKey, nil
}

// State is one agent's root/send/recv chain triple plus its DH keypair.
type State struct {
	mu sync.Mutex

	rootKey [keySize]byte

	dhPrivate [32]byte
	dhPublic  [32]byte

	remotePublic    [32]byte
	haveRemote      bool
	send            chain
	recv            chain
	recvInitialized bool

	skipped []skippedKey
}

// NewState generates a fresh DH keypair and derives the initial root key
// from a shared secret, mirroring an out-of-band X3DH-style handshake. The
// spec treats the handshake itself as out of scope; sharedSecret stands in
// for whatever established it.
func NewState(sharedSecret []byte) (*State, error) {
	s := &State{}
	if _, err := rand.Read(s.dhPrivate[:]); err != nil {
		return nil, fmt.Errorf("ratchet: generating dh key: %w", err)
	}
	pub, err := curve25519.X25519(s.dhPrivate[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("ratchet: deriving dh public key: %w", err)
	}
	copy(s.dhPublic[:], pub)

	reader := hkdf.New(newSHA256, sharedSecret, nil, []byte("chessmcp-ratchet-root"))
	if _, err := io.ReadFull(reader, s.rootKey[:]); err != nil {
		return nil, fmt.Errorf("ratchet: deriving root key: %w", err)
	}
	s.send.key = s.rootKey
	s.recv.key = s.rootKey
	return s, nil
}

// PublicKey returns this side's current DH public key for inclusion in the
// outgoing ratchet header.
func (s *State) PublicKey() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dhPublic
}

// dhRatchetLocked performs a DH ratchet step against a newly observed
// remote public key, deriving a fresh root key and resetting the receiving
// chain from it. Caller must hold s.mu.
func (s *State) dhRatchetLocked(remotePublic [32]byte) error {
	shared, err := curve25519.X25519(s.dhPrivate[:], remotePublic[:])
	if err != nil {
		return fmt.Errorf("ratchet: dh exchange: %w", err)
	}
	reader := hkdf.New(newSHA256, shared, s.rootKey[:], []byte("chessmcp-ratchet-dh"))
	var newRoot [keySize]byte
	var newRecvKey [keySize]byte
	if _, err := io.ReadFull(reader, newRoot[:]); err != nil {
		return fmt.Errorf("ratchet: deriving new root key: %w", err)
	}
	if _, err := io.ReadFull(reader, newRecvKey[:]); err != nil {
		return fmt.Errorf("ratchet: deriving new receive chain key: %w", err)
	}
	s.rootKey = newRoot
	s.recv = chain{key: newRecvKey}
	s.remotePublic = remotePublic
	s.haveRemote = true
	s.recvInitialized = true

	if _, err := rand.Read(s.dhPrivate[:]); err != nil {
		return fmt.Errorf("ratchet: regenerating dh key: %w", err)
	}
	newPub, err := curve25519.X25519(s.dhPrivate[:], curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("ratchet: deriving new dh public key: %w", err)
	}
	copy(s.dhPublic[:], newPub)
	return nil
}

// Encrypt advances the send chain and seals plaintext, returning a
// complete Envelope ready to write to the wire.
func (s *State) Encrypt(plaintext []byte) (Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgKey, err := s.send.advance()
	if err != nil {
		return Envelope{}, err
	}
	header := Header{
		DHPublicKey:     s.dhPublic,
		PreviousCounter: s.recv.counter,
		MessageCounter:  s.send.counter - 1,
	}

	block, err := aes.NewCipher(msgKey[:])
	if err != nil {
		return Envelope{}, fmt.Errorf("ratchet: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("ratchet: building gcm: %w", err)
	}
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("ratchet: generating iv: %w", err)
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	return Envelope{
		JSONRPC:       "2.0",
		Encrypted:     true,
		Ciphertext:    ciphertext,
		IV:            iv,
		RatchetHeader: header,
	}, nil
}

// Decrypt opens an inbound Envelope, performing a DH ratchet step first if
// its header carries a new remote public key, and consulting the skipped
// message key cache for any earlier, out-of-order message.
func (s *State) Decrypt(env Envelope) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.takeSkippedLocked(env.RatchetHeader); ok {
		return open(key, env.IV, env.Ciphertext)
	}

	if !s.haveRemote {
		// Bootstrap: the very first message from a peer establishes the
		// remote identity without a DH step, since both sides already
		// share a root key from the out-of-band secret passed to NewState.
		s.remotePublic = env.RatchetHeader.DHPublicKey
		s.haveRemote = true
		s.recvInitialized = true
	} else if env.RatchetHeader.DHPublicKey != s.remotePublic {
		if err := s.skipRemainingLocked(env.RatchetHeader.PreviousCounter); err != nil {
			return nil, err
		}
		if err := s.dhRatchetLocked(env.RatchetHeader.DHPublicKey); err != nil {
			return nil, err
		}
	}

	if err := s.skipToLocked(env.RatchetHeader.MessageCounter); err != nil {
		return nil, err
	}

	msgKey, err := s.recv.advance()
	if err != nil {
		return nil, err
	}
	return open(msgKey, env.IV, env.Ciphertext)
}

// skipToLocked advances the receive chain up to (not including) the target
// counter, caching each skipped key for later out-of-order delivery.
func (s *State) skipToLocked(target int) error {
	for s.recv.counter < target {
		key, err := s.recv.advance()
		if err != nil {
			return err
		}
		s.cacheSkippedLocked(Header{MessageCounter: s.recv.counter - 1}, key)
	}
	return nil
}

// skipRemainingLocked caches any keys left in the old receive chain before a
// DH ratchet step discards it, bounded by skippedKeysMax.
func (s *State) skipRemainingLocked(previousCounter int) error {
	if !s.recvInitialized {
		return nil
	}
	for s.recv.counter < previousCounter && len(s.skipped) < skippedKeysMax {
		key, err := s.recv.advance()
		if err != nil {
			return err
		}
		s.cacheSkippedLocked(Header{MessageCounter: s.recv.counter - 1}, key)
	}
	return nil
}

func (s *State) cacheSkippedLocked(h Header, key [keySize]byte) {
	if len(s.skipped) >= skippedKeysMax {
		s.skipped = s.skipped[1:]
	}
	s.skipped = append(s.skipped, skippedKey{header: h, key: key})
}

func (s *State) takeSkippedLocked(h Header) ([keySize]byte, bool) {
	for i, sk := range s.skipped {
		if sk.header.MessageCounter == h.MessageCounter {
			s.skipped = append(s.skipped[:i], s.skipped[i+1:]...)
			return sk.key, true
		}
	}
	return [keySize]byte{}, false
}

func open(key [keySize]byte, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Service owns one ratchet State per agent, keyed by agentId, providing
// the session isolation §4.10 requires: a lookup under the wrong agentId
// simply doesn't exist, so cross-agent decryption cannot succeed.
type Service struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewService returns an empty ratchet service.
func NewService() *Service {
	return &Service{states: make(map[string]*State)}
}

// Open establishes ratchet state for agentID from a shared secret,
// replacing any prior state for that agent.
func (svc *Service) Open(agentID string, sharedSecret []byte) (*State, error) {
	st, err := NewState(sharedSecret)
	if err != nil {
		return nil, err
	}
	svc.mu.Lock()
	svc.states[agentID] = st
	svc.mu.Unlock()
	return st, nil
}

// Get returns the ratchet state for agentID, if one has been opened.
func (svc *Service) Get(agentID string) (*State, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	st, ok := svc.states[agentID]
	return st, ok
}

// Remove destroys an agent's ratchet keys, e.g. on idle eviction.
func (svc *Service) Remove(agentID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.states, agentID)
}
