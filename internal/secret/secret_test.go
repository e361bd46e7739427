package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	box, err := NewBox("test-encryption-key-for-testing-32bytes")
	require.NoError(t, err)

	cases := []struct {
		name      string
		plaintext string
	}{
		{name: "google access token", plaintext: "ya29.a0AfH6SMBx-example"},
		{name: "shopify token", plaintext: "shpat_0123456789abcdef"},
		{name: "special characters", plaintext: "!@#$%^&*()_+-=[]{}|;':\",./<>?`~"},
		{name: "empty", plaintext: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := box.Seal(tc.plaintext)
			require.NoError(t, err)
			if tc.plaintext == "" {
				assert.Empty(t, sealed)
			} else {
				assert.NotEqual(t, tc.plaintext, sealed)
			}

			opened, err := box.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, opened)
		})
	}
}

func TestSeal_UsesFreshNonce(t *testing.T) {
	box, err := NewBox("passphrase-passphrase")
	require.NoError(t, err)

	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKey(t *testing.T) {
	a, err := NewBox("first-passphrase-000")
	require.NoError(t, err)
	b, err := NewBox("second-passphrase-00")
	require.NoError(t, err)

	sealed, err := a.Seal("token")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	box, err := NewBox("passphrase-passphrase")
	require.NoError(t, err)

	_, err = box.Open("%%%not-base64")
	assert.Error(t, err)

	_, err = box.Open("AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestNewBox_EmptyPassphrase(t *testing.T) {
	_, err := NewBox("")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}
