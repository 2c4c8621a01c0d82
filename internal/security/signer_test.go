package security

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickydata-indexer/curation-signal-optimizer/internal/model"
)

// Well-known development key, never used outside tests.
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestSigner(t *testing.T, at time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(testKey, time.Hour)
	require.NoError(t, err)
	s.now = func() time.Time { return at }
	return s
}

func TestSigner_SignAndVerify(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, at)

	summary := model.PortfolioSummary{TotalValue: 25, TotalEarnings: 25, AverageYield: 100, TotalSignalAmount: 250, PositionCount: 1}
	env, err := s.Sign(summary)
	require.NoError(t, err)

	assert.Equal(t, Algorithm, env.Integrity.Algorithm)
	assert.Equal(t, s.Address(), env.Integrity.Signer)
	assert.Equal(t, at.Unix(), env.Integrity.SignedAt)
	assert.Equal(t, at.Add(time.Hour).Unix(), env.Integrity.ValidUntil)

	signer, err := Verify(env, at.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer.Hex())
}

func TestVerify_SurvivesTransport(t *testing.T) {
	at := time.Now()
	s := newTestSigner(t, at)

	env, err := s.Sign(map[string]any{"b": 2, "a": []int{1, 2}})
	require.NoError(t, err)

	wire, err := json.MarshalIndent(env, "", "  ")
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(wire, &decoded))

	_, err = Verify(decoded, at)
	assert.NoError(t, err, "re-indented payloads must still verify")
}

func TestVerify_Failures(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, at)

	env, err := s.Sign(map[string]float64{"yield": 12.5})
	require.NoError(t, err)

	t.Run("tampered payload", func(t *testing.T) {
		bad := env
		bad.Payload = json.RawMessage(`{"yield":99}`)
		_, err := Verify(bad, at)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := Verify(env, at.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrSignatureExpired)
	})

	t.Run("extended validity", func(t *testing.T) {
		bad := env
		bad.Integrity.ValidUntil += 3600
		_, err := Verify(bad, at)
		assert.ErrorIs(t, err, ErrSignerMismatch)
	})

	t.Run("claimed signer differs", func(t *testing.T) {
		bad := env
		bad.Integrity.Signer = "0x0000000000000000000000000000000000000001"
		_, err := Verify(bad, at)
		assert.ErrorIs(t, err, ErrSignerMismatch)
	})

	t.Run("malformed signature", func(t *testing.T) {
		bad := env
		bad.Integrity.Signature = "0x1234"
		_, err := Verify(bad, at)
		assert.Error(t, err)
	})
}

func TestNewSigner(t *testing.T) {
	a, err := NewSigner(testKey, 0)
	require.NoError(t, err)
	b, err := NewSigner(testKey[2:], 0)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address(), "0x prefix is optional")
	assert.Equal(t, 24*time.Hour, a.validity)

	eph, err := NewSigner("", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), eph.Address())

	_, err = NewSigner("0xnothex", time.Minute)
	assert.Error(t, err)
}

func TestCanonicalize(t *testing.T) {
	got, err := Canonicalize(json.RawMessage(`{ "b": 1.50, "a": {"d": true, "c": null} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":null,"d":true},"b":1.50}`, string(got))
}
