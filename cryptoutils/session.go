package cryptoutils

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const sessionKeysInfo = "cdsi session keys v1"

// ErrDecryption is returned when a session message fails authentication.
var ErrDecryption = errors.New("session message authentication failed")

// SessionRole selects which direction keys a SessionCipher seals with.
type SessionRole int

const (
	ClientRole SessionRole = iota
	ServerRole
)

// X25519Keypair is an ephemeral session key pair.
type X25519Keypair struct {
	Private [curve25519.ScalarSize]byte
	Public  [curve25519.PointSize]byte
}

// NewX25519Keypair generates a fresh key pair.
func NewX25519Keypair() (*X25519Keypair, error) {
	kp := &X25519Keypair{}
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return nil, fmt.Errorf("could not generate session key: %w", err)
	}

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("could not derive session public key: %w", err)
	}
	copy(kp.Public[:], pub)

	return kp, nil
}

// SharedSecret computes the X25519 shared secret with a peer public key.
func (kp *X25519Keypair) SharedSecret(peerPubkey []byte) ([]byte, error) {
	if len(peerPubkey) != curve25519.PointSize {
		return nil, fmt.Errorf("invalid peer public key length %d", len(peerPubkey))
	}
	return curve25519.X25519(kp.Private[:], peerPubkey)
}

// SessionCipher seals outgoing and opens incoming messages of one session.
// Messages in each direction must be processed in order.
type SessionCipher struct {
	mu      sync.Mutex
	send    cipher.AEAD
	recv    cipher.AEAD
	sendCtr uint64
	recvCtr uint64
}

// NewSessionCipher derives directional keys from a shared secret.
func NewSessionCipher(sharedSecret []byte, salt []byte, role SessionRole) (*SessionCipher, error) {
	okm := make([]byte, 2*chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, salt, []byte(sessionKeysInfo)), okm); err != nil {
		return nil, fmt.Errorf("could not derive session keys: %w", err)
	}

	c2s, err := chacha20poly1305.New(okm[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, err
	}
	s2c, err := chacha20poly1305.New(okm[chacha20poly1305.KeySize:])
	if err != nil {
		return nil, err
	}

	if role == ClientRole {
		return &SessionCipher{send: c2s, recv: s2c}, nil
	}
	return &SessionCipher{send: s2c, recv: c2s}, nil
}

func counterNonce(ctr uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-8:], ctr)
	return nonce
}

// Seal encrypts the next outgoing message.
func (c *SessionCipher) Seal(plaintext []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	ciphertext := c.send.Seal(nil, counterNonce(c.sendCtr), plaintext, nil)
	c.sendCtr++
	return ciphertext
}

// Open decrypts the next incoming message. A failed message does not advance
// the counter.
func (c *SessionCipher) Open(ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plaintext, err := c.recv.Open(nil, counterNonce(c.recvCtr), ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	c.recvCtr++
	return plaintext, nil
}
