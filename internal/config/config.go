// Package config resolves decompgraph settings from the environment and an
// optional .env file. Command-line flags override what Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Engine names accepted by DECOMPGRAPH_ENGINE and --engine.
const (
	EngineAuto   = "auto"
	EngineGhidra = "ghidra"
	EngineNative = "native"
	EngineExport = "export"
)

type Config struct {
	GhidraHome       string
	JavaHome         string
	ProjectDir       string
	DecompileTimeout time.Duration
	Engine           string
	Artifact         ArtifactConfig
}

// ArtifactConfig locates the S3-compatible bucket artifacts are published to.
type ArtifactConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an endpoint is configured.
func (a ArtifactConfig) Enabled() bool {
	return a.Endpoint != ""
}

// Load reads the given .env files (".env" when none are named) without
// overriding variables already set, then builds a Config from the
// environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	timeout, err := parseTimeout(env("DECOMPGRAPH_DECOMPILE_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	engine, err := ParseEngine(env("DECOMPGRAPH_ENGINE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		GhidraHome:       env("GHIDRA_HOME"),
		JavaHome:         env("JAVA_HOME"),
		ProjectDir:       env("DECOMPGRAPH_PROJECTS"),
		DecompileTimeout: timeout,
		Engine:           engine,
		Artifact:         loadArtifactConfig(),
	}, nil
}

func loadArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Endpoint:  env("ARTIFACT_S3_ENDPOINT"),
		Region:    firstNonEmpty(env("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(env("ARTIFACT_S3_BUCKET"), "decompgraph-artifacts"),
		UseSSL:    parseBoolDefault(env("ARTIFACT_S3_USE_SSL"), true),
	}
}

// ParseEngine normalizes an engine name. Empty selects EngineAuto.
func ParseEngine(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return EngineAuto, nil
	case EngineAuto, EngineGhidra, EngineNative, EngineExport:
		return name, nil
	}
	return "", fmt.Errorf("config: unknown engine %q (want auto, ghidra, native or export)", name)
}

// parseTimeout accepts whole seconds or a Go duration. Empty means no limit.
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: DECOMPGRAPH_DECOMPILE_TIMEOUT: invalid duration %q", raw)
	}
	return d, nil
}

func parseBoolDefault(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
