package token

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintValidate_HappyPath(t *testing.T) {
	secret := []byte("a-32-byte-test-signing-secret!!")
	epoch := time.Unix(1_000_000, 0)

	claims := Claims{
		Subject:     "a",
		Vault:       "v",
		Permissions: []string{"read"},
		IssuedAt:    epoch.Unix(),
		Expiry:      epoch.Add(3600 * time.Second).Unix(),
		ID:          "jti-1",
	}

	tok, err := Mint(claims, secret)
	require.NoError(t, err)

	// 500s in: still valid.
	got, err := ValidateAt(tok, secret, epoch.Add(500*time.Second))
	require.NoError(t, err)
	assert.Equal(t, claims, got)

	// Exactly at exp: strict, no leeway, fails.
	_, err = ValidateAt(tok, secret, epoch.Add(3600*time.Second))
	assert.Error(t, err)

	// One second before exp: succeeds.
	_, err = ValidateAt(tok, secret, epoch.Add(3599*time.Second))
	assert.NoError(t, err)
}

func TestValidate_TamperDetection(t *testing.T) {
	secret := []byte("a-32-byte-test-signing-secret!!")
	claims := Claims{Subject: "a", Expiry: time.Now().Add(time.Hour).Unix()}

	tok, err := Mint(claims, secret)
	require.NoError(t, err)

	tampered := []byte(tok)
	// Flip a bit in the payload segment somewhere past the header.
	flipIdx := len(tampered) / 2
	tampered[flipIdx] ^= 0x01

	_, err = Validate(string(tampered), secret)
	assert.Error(t, err)
}

func TestValidate_WrongSecret(t *testing.T) {
	claims := Claims{Subject: "a", Expiry: time.Now().Add(time.Hour).Unix()}
	tok, err := Mint(claims, []byte("secret-one-32-bytes-aaaaaaaaaaa"))
	require.NoError(t, err)

	_, err = Validate(tok, []byte("secret-two-32-bytes-bbbbbbbbbbb"))
	assert.Error(t, err)
}

func TestValidate_Malformed(t *testing.T) {
	_, err := Validate("not-a-jwt", []byte("secret"))
	assert.Error(t, err)
}

func TestSecretPool_RotateBounds(t *testing.T) {
	pool, err := NewSecretPool(time.Hour)
	require.NoError(t, err)

	for i := 0; i < MaxRetiredSecrets+10; i++ {
		require.NoError(t, pool.Rotate())
	}

	assert.LessOrEqual(t, len(pool.Secrets()), MaxRetiredSecrets+1)
}

func TestMultiValidator_AcceptsRetiredKey(t *testing.T) {
	pool, err := NewSecretPool(time.Hour)
	require.NoError(t, err)

	claims := Claims{Subject: "a", Expiry: time.Now().Add(time.Hour).Unix()}
	tok, err := Mint(claims, pool.Active())
	require.NoError(t, err)

	require.NoError(t, pool.Rotate())

	v := NewMultiValidator(pool)
	got, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, claims.Subject, got.Subject)
}

func TestMultiValidator_RejectsUnknownKey(t *testing.T) {
	pool, err := NewSecretPool(time.Hour)
	require.NoError(t, err)

	tok, err := Mint(Claims{Subject: "a", Expiry: time.Now().Add(time.Hour).Unix()}, []byte("not-in-the-pool-at-all-32bytes!"))
	require.NoError(t, err)

	v := NewMultiValidator(pool)
	_, err = v.Validate(tok)
	assert.Error(t, err)
}

func TestRedact_ScrubsLiveSecret(t *testing.T) {
	pool, err := NewSecretPool(time.Hour)
	require.NoError(t, err)

	secretHex := hex.EncodeToString(pool.Active())
	text := "signing with " + secretHex + " today"

	assert.NotContains(t, Redact(pool, text), secretHex)
}
