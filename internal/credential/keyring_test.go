package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultRoundTrip(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))

	_, err := v.Get(SMTPPasswordKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, v.Set(SMTPPasswordKey, "s3cret"))
	got, err := v.Get(SMTPPasswordKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, v.Delete(SMTPPasswordKey))
	require.NoError(t, v.Delete(SMTPPasswordKey), "second delete is a no-op")

	_, err = v.Get(SMTPPasswordKey)
	assert.ErrorIs(t, err, ErrNotFound)
}
