package hdfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
)

func TestRegistry(t *testing.T) {
	t.Run("insecure client is registered", func(t *testing.T) {
		assert.Contains(t, RegisteredClients(), "insecure")

		client, err := NewRegistered("insecure", &hdfstypes.ClientConfig{
			Namenodes: []string{"http://nn:9870"},
		})
		require.NoError(t, err)
		assert.Equal(t, "http://nn:9870", client.ActiveNamenode())
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := NewRegistered("kerberos", &hdfstypes.ClientConfig{})
		require.Error(t, err)
		assert.ErrorIs(t, err, hdfserrors.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "kerberos")
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		RegisterClient("registry-test-dup", NewFromConfig)
		assert.Panics(t, func() {
			RegisterClient("registry-test-dup", NewFromConfig)
		})
	})
}
