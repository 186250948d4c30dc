package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/errors"
)

// P7: encrypt/decrypt round-trips to the original plaintext.
func TestEncryptDecrypt_RoundTrips(t *testing.T) {
	box, err := NewBox("test-secret")
	assert.NoError(t, err)

	encoded, err := box.Encrypt("super-secret-api-key")
	assert.NoError(t, err)
	assert.NotEqual(t, "super-secret-api-key", encoded)

	plain, err := box.Decrypt(encoded)
	assert.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", plain)
}

func TestDecrypt_WrongKeyFailsExplicitly(t *testing.T) {
	box1, _ := NewBox("secret-one")
	box2, _ := NewBox("secret-two")

	encoded, err := box1.Encrypt("credential")
	assert.NoError(t, err)

	_, err = box2.Decrypt(encoded)
	assert.Error(t, err)
	assert.Equal(t, errors.KindCredential, errors.KindOf(err))
}

func TestDecrypt_TamperedCiphertextFailsExplicitly(t *testing.T) {
	box, _ := NewBox("secret")
	encoded, err := box.Encrypt("credential")
	assert.NoError(t, err)

	tampered := encoded[:len(encoded)-4] + "abcd"
	_, err = box.Decrypt(tampered)
	assert.Error(t, err)
}

func TestDecrypt_MalformedInputFailsExplicitly(t *testing.T) {
	box, _ := NewBox("secret")
	_, err := box.Decrypt("not-valid-base64!!")
	assert.Error(t, err)
	assert.Equal(t, errors.KindCredential, errors.KindOf(err))
}
