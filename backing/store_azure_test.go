//go:build integration_azure

package backing

import (
	"testing"

	"github.com/stretchr/testify/require"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
)

func TestAzureStore(t *testing.T) {
	azureStore, err := NewAzureStore(ctx, st.Backing.Azure.Endpoint, st.Backing.Azure.Container, st.Backing.Azure.StorageAccount, st.Backing.Azure.AccessKey, "bloomcache-test")
	require.NoError(t, err)

	StoreImplementationBaseTests(t, azureStore)
	ListerBaseTests(t, azureStore)
}
