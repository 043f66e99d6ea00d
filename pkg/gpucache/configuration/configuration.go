// Package configuration turns a Jsonnet configuration file into a fully
// wired gpucache.BlobCache, following the teacher's convention
// (pkg/util.UnmarshalConfigurationFromFile, pkg/blobstore/configuration)
// of driving process wiring from a single declarative file rather than
// a pile of flags.
package configuration

import (
	"encoding/hex"

	"github.com/klauspost/compress/zstd"

	"github.com/buildbarn/gpucache/pkg/clock"
	"github.com/buildbarn/gpucache/pkg/gpucache/blobcache"
	"github.com/buildbarn/gpucache/pkg/gpucache/kvstore"
	"github.com/buildbarn/gpucache/pkg/gpucache/telemetry"
	"github.com/buildbarn/gpucache/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

// BackendKind selects which kvstore backend Configuration.Backend wires
// up. Unlike the teacher's Protobuf-oneof equivalent
// (blobstore.configuration.BlobAccessConfiguration), this is a plain
// string tag read off the evaluated Jsonnet document: hand-authoring a
// .proto message and its generated Go bindings without running protoc
// would mean fabricating generated code rather than grounding it in a
// real toolchain run, so the message shape here is a plain Go struct
// unmarshaled with gopkg.in/yaml.v3 (which accepts the Jsonnet VM's JSON
// output, JSON being a YAML subset) instead of protojson.
type BackendKind string

const (
	BackendMemory     BackendKind = "memory"
	BackendFilesystem BackendKind = "filesystem"
	BackendRedis      BackendKind = "redis"
)

// BackendConfiguration selects and parameterizes a single kvstore
// backend.
type BackendConfiguration struct {
	Kind BackendKind `yaml:"kind"`

	// FilesystemRoot is used when Kind == BackendFilesystem.
	FilesystemRoot string `yaml:"filesystemRoot"`

	// RedisAddress, RedisKeyPrefix and RedisKeyTTLSeconds are decoded but
	// not used: NewBlobCache rejects Kind == BackendRedis with
	// codes.Unimplemented.
	RedisAddress       string `yaml:"redisAddress"`
	RedisKeyPrefix     string `yaml:"redisKeyPrefix"`
	RedisKeyTTLSeconds int64  `yaml:"redisKeyTtlSeconds"`

	// Compress wraps the selected backend with kvstore.Compressing,
	// storing every value Zstandard-compressed. Off by default: the
	// in-memory backend gains nothing from it, and it costs CPU on
	// every Load/Store.
	Compress bool `yaml:"compress"`

	// MaxConcurrentRequests, if positive, wraps the selected backend
	// with kvstore.Limited, bounding how many Load/Store calls may be
	// in flight against it at once. Meaningful chiefly for the
	// networked backends (S3, GCS, Redis).
	MaxConcurrentRequests int64 `yaml:"maxConcurrentRequests"`
}

// TelemetryConfiguration selects the telemetry.Platform a BlobCache
// reports through.
type TelemetryConfiguration struct {
	// Prometheus enables the Prometheus-backed platform
	// (telemetry.NewPrometheusPlatform) in place of the no-op default.
	Prometheus bool `yaml:"prometheus"`
}

// Configuration is the root Jsonnet-evaluated document this package
// consumes: spec.md §6's "version tag", "hash validation" and external
// store knobs, plus the ambient telemetry choice.
type Configuration struct {
	// VersionTagHex is the version tag every CacheKey must contain as a
	// substring, hex-encoded so it round-trips safely through JSON/YAML
	// regardless of its byte content.
	VersionTagHex string `yaml:"versionTagHex"`
	// HashValidation enables hash-prefixed payload framing
	// (blobcache.New's hashValidationEnabled).
	HashValidation bool                   `yaml:"hashValidation"`
	Backend        BackendConfiguration   `yaml:"backend"`
	Telemetry      TelemetryConfiguration `yaml:"telemetry"`
}

// Load reads path (a Jsonnet file, or "-" for stdin), evaluates it with
// the current process's environment variables available through
// std.extVar() via util.EvaluateJsonnetFile, and unmarshals the result
// into a Configuration.
func Load(path string) (*Configuration, error) {
	jsonnetOutput, err := util.EvaluateJsonnetFile(path)
	if err != nil {
		return nil, err
	}

	var c Configuration
	if err := yaml.Unmarshal([]byte(jsonnetOutput), &c); err != nil {
		return nil, util.StatusWrap(err, "failed to unmarshal configuration")
	}
	return &c, nil
}

// NewBlobCache wires up the kvstore backend and telemetry platform this
// Configuration describes, returning a ready-to-use BlobCache together
// with its telemetry.Platform (needed separately by cacherequest.LoadOrRun
// call sites, which don't receive it through the BlobCache itself).
func NewBlobCache(c *Configuration, errorLogger util.ErrorLogger) (*blobcache.BlobCache, telemetry.Platform, error) {
	versionTag, err := hex.DecodeString(c.VersionTagHex)
	if err != nil {
		return nil, nil, util.StatusWrapf(err, "versionTagHex is not valid hex")
	}

	var load blobcache.LoadFunc
	var store blobcache.StoreFunc
	switch c.Backend.Kind {
	case BackendMemory:
		m := kvstore.NewMemory()
		load, store = m.Load, m.Store
	case BackendFilesystem:
		if c.Backend.FilesystemRoot == "" {
			return nil, nil, status.Error(codes.InvalidArgument, "backend.filesystemRoot must be set for the filesystem backend")
		}
		f := kvstore.NewFilesystem(c.Backend.FilesystemRoot, errorLogger)
		load, store = f.Load, f.Store
	case BackendRedis:
		return nil, nil, status.Error(codes.Unimplemented, "wiring a redis.Client from configuration requires a connection pool constructed by the caller; use kvstore.NewRedis directly")
	default:
		return nil, nil, status.Errorf(codes.InvalidArgument, "unknown backend kind %q", c.Backend.Kind)
	}

	if c.Backend.MaxConcurrentRequests > 0 {
		limited := kvstore.NewLimited(load, store, c.Backend.MaxConcurrentRequests)
		load, store = limited.Load, limited.Store
	}
	if c.Backend.Compress {
		compressing := kvstore.NewCompressing(load, store, zstd.SpeedDefault, errorLogger)
		load, store = compressing.Load, compressing.Store
	}

	platform := telemetry.Noop
	if c.Telemetry.Prometheus {
		platform = telemetry.NewPrometheusPlatform(clock.SystemClock)
	}

	return blobcache.New(load, store, c.HashValidation, versionTag), platform, nil
}
