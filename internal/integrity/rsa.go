// Package integrity signs handshake descriptions so a receiver can detect
// tampering on the way through the rendezvous server.
package integrity

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

const keyBits = 2048

var (
	ErrBadSignature  = errors.New("invalid signature")
	ErrUntrustedKey  = errors.New("public key is not trusted")
	ErrMissingSealed = errors.New("payload is not signed")
)

// Envelope wraps a signed body on the wire.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key"`
}

// Signer signs outgoing offers and answers with RSASSA-PKCS1-v1_5 over
// SHA-256 and verifies incoming ones. Candidates pass through untouched.
type Signer struct {
	key    *rsa.PrivateKey
	pubDER []byte

	// trusted holds DER-encoded public keys; empty means any key whose
	// signature verifies is accepted.
	trusted map[string]struct{}
}

// NewSigner wraps key. A nil key generates a fresh one.
func NewSigner(key *rsa.PrivateKey, trusted ...*rsa.PublicKey) (*Signer, error) {
	if key == nil {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, keyBits)
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	s := &Signer{key: key, pubDER: pubDER, trusted: make(map[string]struct{})}
	for _, pub := range trusted {
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("encode trusted key: %w", err)
		}
		s.trusted[string(der)] = struct{}{}
	}
	return s, nil
}

// PublicKey returns the base64 SPKI form of our public key.
func (s *Signer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.pubDER)
}

func signed(kind protocol.SignalKind) bool {
	return kind == protocol.KindOffer || kind == protocol.KindAnswer
}

func (s *Signer) Seal(kind protocol.SignalKind, body json.RawMessage) (json.RawMessage, error) {
	if !signed(kind) {
		return body, nil
	}

	// The relay re-encodes bodies compactly, so sign the compact form.
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, fmt.Errorf("sign %s: %w", kind, err)
	}
	body = compact.Bytes()

	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", kind, err)
	}

	return json.Marshal(Envelope{
		Payload:   body,
		Signature: base64.StdEncoding.EncodeToString(sig),
		PublicKey: s.PublicKey(),
	})
}

func (s *Signer) Open(kind protocol.SignalKind, body json.RawMessage) (json.RawMessage, error) {
	if !signed(kind) {
		return body, nil
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Payload) == 0 || env.Signature == "" || env.PublicKey == "" {
		return nil, ErrMissingSealed
	}

	der, err := base64.StdEncoding.DecodeString(env.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(s.trusted) > 0 {
		if _, ok := s.trusted[string(der)]; !ok {
			return nil, ErrUntrustedKey
		}
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", parsed)
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	digest := sha256.Sum256(env.Payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return nil, ErrBadSignature
	}
	return env.Payload, nil
}

// GenerateKeyPEM creates a new key pair and returns both halves PEM encoded.
func GenerateKeyPEM() (private, public []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	private = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	public = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return private, public, nil
}

// LoadPrivateKey reads a PKCS#8 or PKCS#1 RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: key is %T, want RSA", path, parsed)
	}
	return key, nil
}

// LoadPublicKey reads an SPKI RSA public key from a PEM file.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: key is %T, want RSA", path, parsed)
	}
	return pub, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	return block, nil
}
