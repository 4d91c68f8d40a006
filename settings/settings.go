/*
Package settings controls reading configuration from environment and assigning defaults
*/
package settings

import (
	"fmt"
	"log" // cannot use zerolog as log options not initialised
	"os"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// environment variables must start with this prefix followed by '__' or '.'
const envPrefix = "BC"

var Settings *BCSettings
var Redis *BCRedis
var Filter *BCFilter
var Cache *BCCache
var Backing *BCBacking
var Load *BCLoad

// Logger is the process wide logger, rebuilt by ResetSettings.
var Logger zerolog.Logger

// HumanReadableBytes accepts values such as "64Mi" or "1GB" from the environment.
type HumanReadableBytes uint64

type BCRedis struct {
	// host:port of the redis server holding filters and cached records
	Endpoint string `koanf:"endpoint"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// retries performed by the redis client itself, the gate does not retry
	MaxRetries               int `koanf:"max_retries"`
	ConnectionTimeoutSeconds int `koanf:"connection_timeout_seconds"`
	// connections per partition
	PoolSize int `koanf:"pool_size"`
}

type BCFilter struct {
	// redis key holding the bit array
	Key string `koanf:"key"`
	// redis logical database holding the bit array
	Partition int `koanf:"partition"`
	// number of items the filter is sized for
	ExpectedInsertions uint64 `koanf:"expected_insertions"`
	// target false positive probability once ExpectedInsertions items are added
	FalsePositiveProbability float64 `koanf:"false_positive_probability"`
	// item encoding, one of: string, doubled_string
	Funnel string `koanf:"funnel"`
}

type BCCache struct {
	// redis hash holding cached records, one field per id
	Key       string `koanf:"key"`
	Partition int    `koanf:"partition"`
	// ttl applied when a record is written to the cache
	TTLSeconds int64 `koanf:"ttl_seconds"`
	// expire individual hash fields (HEXPIRE, redis >= 7.4) rather than the whole hash
	FieldTTL bool `koanf:"field_ttl"`
	// in process cache in front of redis, 0 disables
	LocalSizeBytes  HumanReadableBytes `koanf:"local_size_bytes"`
	LocalShards     int                `koanf:"local_shards"`
	LocalTTLSeconds int64              `koanf:"local_ttl_seconds"`
}

type BCBackingLocal struct {
	Path string `koanf:"path"`
}

type BCBackingS3 struct {
	// S3 server address
	Endpoint string `koanf:"endpoint"`
	// Access key to auth against S3 bucket, empty to use IAM
	AccessKey string `koanf:"access_key"`
	// Secret key to auth against S3 bucket
	SecretKey string `koanf:"secret_key"`
	// Whether to utilise HTTPS for S3 transport
	Secure bool `koanf:"secure"`
	// S3 region or empty if unsupported by server
	Region string `koanf:"region"`
	// S3 bucket holding one object per record
	Bucket string `koanf:"bucket"`
	// prefix prepended to record ids to form object names
	Prefix string `koanf:"prefix"`
}

type BCBackingAzure struct {
	Endpoint       string `koanf:"endpoint"`
	StorageAccount string `koanf:"storage_account"`
	Container      string `koanf:"container"`
	AccessKey      string `koanf:"access_key"`
	Prefix         string `koanf:"prefix"`
}

type BCBackingSQL struct {
	// sqlite3 or postgres
	Driver        string `koanf:"driver"`
	DSN           string `koanf:"dsn"`
	Table         string `koanf:"table"`
	IDColumn      string `koanf:"id_column"`
	PayloadColumn string `koanf:"payload_column"`
}

type BCBacking struct {
	// valid backends: memory, local, s3, azure, sql
	Backend string         `koanf:"backend"`
	Local   BCBackingLocal `koanf:"local"`
	S3      BCBackingS3    `koanf:"s3"`
	Azure   BCBackingAzure `koanf:"azure"`
	SQL     BCBackingSQL   `koanf:"sql"`
}

type BCLoad struct {
	// concurrent filter writers
	Workers int `koanf:"workers"`
	// max ids added per second, 0 for unlimited
	RatePerSecond float64 `koanf:"rate_per_second"`
	// attempts for an id before the load is aborted
	MaxRetries int `koanf:"max_retries"`
	// first backoff between attempts, doubles each retry
	BackoffMilliseconds int64 `koanf:"backoff_ms"`
}

type BCSettings struct {
	// ops server will listen for connections from this address
	ListenAddr string `koanf:"listen_addr"`
	// for custom log files, the folder to place these file in
	LogPath string `koanf:"log_path"`
	// zerolog level name
	LogLevel string `koanf:"log_level"`
	// human friendly console output instead of json
	LogPretty bool      `koanf:"log_pretty"`
	Redis     BCRedis   `koanf:"redis"`
	Filter    BCFilter  `koanf:"filter"`
	Cache     BCCache   `koanf:"cache"`
	Backing   BCBacking `koanf:"backing"`
	Load      BCLoad    `koanf:"load"`
	// yaml list of additional filter definitions, see filters.go
	Filters string `koanf:"filters"`
}

var defaults BCSettings = BCSettings{
	ListenAddr: ":8112",
	LogPath:    "/tmp/logs/bloomcache/",
	LogLevel:   "info",
	Redis: BCRedis{
		Endpoint:                 "",
		MaxRetries:               3,
		ConnectionTimeoutSeconds: 5,
		PoolSize:                 10,
	},
	Filter: BCFilter{
		Key:                      "USER_INFO",
		Partition:                1,
		ExpectedInsertions:       1500000,
		FalsePositiveProbability: 0.001,
		Funnel:                   "doubled_string",
	},
	Cache: BCCache{
		Key:             "USER_INFO",
		Partition:       0,
		TTLSeconds:      60 * 60,
		FieldTTL:        false,
		LocalSizeBytes:  0, // local cache is off by default
		LocalShards:     64,
		LocalTTLSeconds: 60,
	},
	Backing: BCBacking{
		Backend: "local",
		Local: BCBackingLocal{
			Path: "/tmp/bloomcache/records",
		},
		S3: BCBackingS3{
			Bucket: "records",
		},
		Azure: BCBackingAzure{
			Container: "records",
		},
		SQL: BCBackingSQL{
			Driver:        "sqlite3",
			DSN:           "file:/tmp/bloomcache/records.db",
			Table:         "records",
			IDColumn:      "id",
			PayloadColumn: "payload",
		},
	},
	Load: BCLoad{
		Workers:             8,
		RatePerSecond:       0,
		MaxRetries:          5,
		BackoffMilliseconds: 100,
	},
	Filters: "",
}

// HumanReadableBytesHookFunc converts strings such as "10Ki" into HumanReadableBytes.
func HumanReadableBytesHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(HumanReadableBytes(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		// humanize wants iB suffixes for base 2
		if strings.HasSuffix(raw, "i") {
			raw += "B"
		}
		val, err := humanize.ParseBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid byte size %q: %w", data, err)
		}
		return HumanReadableBytes(val), nil
	}
}

// envKey maps BC__CACHE__TTL_SECONDS and BC.CACHE.TTL_SECONDS to cache.ttl_seconds.
func envKey(s string) string {
	var rest string
	switch {
	case strings.HasPrefix(s, envPrefix+"__"):
		rest = strings.ReplaceAll(s[len(envPrefix)+2:], "__", ".")
	case strings.HasPrefix(s, envPrefix+"."):
		rest = s[len(envPrefix)+1:]
	default:
		return ""
	}
	return strings.ToLower(rest)
}

// ParseSettings loads defaults then overlays the environment.
func ParseSettings(base BCSettings) (*BCSettings, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(base, "koanf"), nil); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	out := BCSettings{}
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				HumanReadableBytesHookFunc(),
			),
			Result:           &out,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &out, conf); err != nil {
		return nil, err
	}
	return &out, nil
}

func setupLogger(settings *BCSettings) {
	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		log.Printf("Invalid log level '%s', using info", settings.LogLevel)
		level = zerolog.InfoLevel
	}
	if settings.LogPretty {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
}

func setupLoggers(settings *BCSettings) {
	setupLogger(settings)
	createFileLoggers(settings.LogPath)
}

func ResetSettings() {
	parsed, err := ParseSettings(defaults)
	if err != nil {
		log.Fatalf("Failed to parse settings: %s", err.Error())
	}
	Settings = parsed
	setupLoggers(Settings)
	Redis = &Settings.Redis
	Filter = &Settings.Filter
	Cache = &Settings.Cache
	Backing = &Settings.Backing
	Load = &Settings.Load
}

func init() {
	ResetSettings()
}
