// Package security signs analysis reports so downstream consumers can check who
// produced them and that they were not altered in transit.
package security

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Algorithm names the signature scheme in every envelope
const Algorithm = "secp256k1-keccak256"

var (
	// ErrSignatureExpired is returned for envelopes past their valid_until time
	ErrSignatureExpired = errors.New("signature expired")

	// ErrIntegrity is returned when the payload no longer matches its digest
	ErrIntegrity = errors.New("payload digest mismatch")

	// ErrSignerMismatch is returned when the recovered signer differs from the claimed one
	ErrSignerMismatch = errors.New("signature does not match signer")
)

// Integrity carries the digest and signature of a payload
type Integrity struct {
	Algorithm  string `json:"algorithm"`
	Keccak256  string `json:"keccak256"`
	SHA256     string `json:"sha256"`
	Signature  string `json:"signature"`
	Signer     string `json:"signer"`
	SignedAt   int64  `json:"signed_at"`
	ValidUntil int64  `json:"valid_until"`
}

// Envelope is a signed payload
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Integrity Integrity       `json:"integrity"`
}

// Signer signs payloads with a secp256k1 key
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	validity time.Duration
	now      func() time.Time
}

// NewSigner loads the hex private key, with or without 0x. An empty key generates
// an ephemeral one. validity <= 0 means 24 hours.
func NewSigner(privateKeyHex string, validity time.Duration) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if privateKeyHex == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No signing key configured, using an ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
	}
	if validity <= 0 {
		validity = 24 * time.Hour
	}

	s := &Signer{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		validity: validity,
		now:      time.Now,
	}
	logrus.WithField("signer", s.address.Hex()).Info("Report signer initialized")
	return s, nil
}

// Address returns the signer's checksummed address
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Sign wraps payload in a signed envelope. The signature covers the canonical
// JSON of payload and the validity window.
func (s *Signer) Sign(payload any) (Envelope, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return Envelope{}, err
	}

	signedAt := s.now().UTC()
	validUntil := signedAt.Add(s.validity)
	digest := signingDigest(canonical, signedAt.Unix(), validUntil.Unix())

	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to sign payload: %w", err)
	}

	return Envelope{
		Payload: canonical,
		Integrity: Integrity{
			Algorithm:  Algorithm,
			Keccak256:  crypto.Keccak256Hash(canonical).Hex(),
			SHA256:     fmt.Sprintf("%x", sha256.Sum256(canonical)),
			Signature:  hexutil.Encode(sig),
			Signer:     s.address.Hex(),
			SignedAt:   signedAt.Unix(),
			ValidUntil: validUntil.Unix(),
		},
	}, nil
}

// Verify checks env at time now and returns the recovered signer address
func Verify(env Envelope, now time.Time) (common.Address, error) {
	canonical, err := Canonicalize(env.Payload)
	if err != nil {
		return common.Address{}, err
	}

	in := env.Integrity
	if crypto.Keccak256Hash(canonical).Hex() != in.Keccak256 ||
		fmt.Sprintf("%x", sha256.Sum256(canonical)) != in.SHA256 {
		return common.Address{}, ErrIntegrity
	}
	if now.Unix() > in.ValidUntil {
		return common.Address{}, fmt.Errorf("%w at %s", ErrSignatureExpired, time.Unix(in.ValidUntil, 0).UTC().Format(time.RFC3339))
	}

	sig, err := hexutil.Decode(in.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	digest := signingDigest(canonical, in.SignedAt, in.ValidUntil)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if !common.IsHexAddress(in.Signer) || recovered != common.HexToAddress(in.Signer) {
		return common.Address{}, ErrSignerMismatch
	}
	return recovered, nil
}

// Canonicalize returns the compact JSON encoding of v with object keys sorted
func Canonicalize(v any) (json.RawMessage, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return out, nil
}

func signingDigest(canonical []byte, signedAt, validUntil int64) common.Hash {
	return crypto.Keccak256Hash(
		canonical,
		[]byte(strconv.FormatInt(signedAt, 10)),
		[]byte(strconv.FormatInt(validUntil, 10)),
	)
}
