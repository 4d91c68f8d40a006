//go:build integration

package backing

import (
	"testing"

	"github.com/stretchr/testify/require"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
)

func TestStoreS3(t *testing.T) {
	s3Store, err := NewS3Store(
		ctx,
		st.Backing.S3.Endpoint,
		st.Backing.S3.AccessKey,
		st.Backing.S3.SecretKey,
		st.Backing.S3.Secure,
		st.Backing.S3.Bucket,
		st.Backing.S3.Region,
		"bloomcache-test",
	)
	require.NoError(t, err)

	StoreImplementationBaseTests(t, s3Store)
	ListerBaseTests(t, s3Store)
}
