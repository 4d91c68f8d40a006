package settings

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadAllConfig(t *testing.T) {
	// backup env
	envs := os.Environ()
	os.Clearenv()

	os.Setenv("BC__CACHE__LOCAL_SIZE_BYTES", "10Ki")
	ResetSettings()
	require.Equal(t, HumanReadableBytes(0x2800), Settings.Cache.LocalSizeBytes)
	require.Equal(t, int64(3600), Settings.Cache.TTLSeconds)

	os.Setenv("BC__CACHE__LOCAL_SIZE_BYTES", "20Ki")
	ResetSettings()
	require.Equal(t, HumanReadableBytes(0x5000), Settings.Cache.LocalSizeBytes)

	os.Unsetenv("BC__CACHE__LOCAL_SIZE_BYTES")
	os.Setenv("BC.CACHE.LOCAL_SIZE_BYTES", "30Ki")
	os.Setenv("BC.CACHE.FIELD_TTL", "true")
	os.Setenv("BC.BACKING.S3.SECURE", "false")
	os.Setenv("BC.BACKING.S3.ACCESS_KEY", "myaccess")
	os.Setenv("BC.BACKING.S3.SECRET_KEY", "mysecret")
	os.Setenv("BC__FILTER__FALSE_POSITIVE_PROBABILITY", "0.01")
	os.Setenv("BC__REDIS__ENDPOINT", "localhost:6379")
	ResetSettings()
	require.Equal(t, HumanReadableBytes(0x7800), Settings.Cache.LocalSizeBytes)
	require.True(t, Settings.Cache.FieldTTL)
	require.False(t, Settings.Backing.S3.Secure)
	require.Equal(t, "myaccess", Settings.Backing.S3.AccessKey)
	require.Equal(t, "mysecret", Settings.Backing.S3.SecretKey)
	require.Equal(t, 0.01, Filter.FalsePositiveProbability)
	require.Equal(t, "localhost:6379", Redis.Endpoint)
	require.Equal(t, uint64(1500000), Filter.ExpectedInsertions)

	// unrelated prefixes are ignored
	os.Setenv("BCX__REDIS__ENDPOINT", "elsewhere:6379")
	ResetSettings()
	require.Equal(t, "localhost:6379", Redis.Endpoint)

	// restore variables
	os.Clearenv()
	for _, e := range envs {
		pair := strings.SplitN(e, "=", 2)
		os.Setenv(pair[0], pair[1])
	}
	ResetSettings()
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "cache.ttl_seconds", envKey("BC__CACHE__TTL_SECONDS"))
	require.Equal(t, "cache.ttl_seconds", envKey("BC.CACHE.TTL_SECONDS"))
	require.Equal(t, "log_level", envKey("BC__LOG_LEVEL"))
	require.Equal(t, "", envKey("BCRYPT_COST"))
	require.Equal(t, "", envKey("PATH"))
}

func TestHumanReadableBytesInvalid(t *testing.T) {
	base := defaults
	os.Setenv("BC__CACHE__LOCAL_SIZE_BYTES", "lots")
	defer os.Unsetenv("BC__CACHE__LOCAL_SIZE_BYTES")
	_, err := ParseSettings(base)
	require.Error(t, err)
}
