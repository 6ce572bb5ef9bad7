package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/formaly/tiergate/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadDefaults(t *testing.T) {
	Convey("Given no file and no environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		Convey("Then Load should return the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.Tiers, ShouldHaveLength, 5)
			So(cfg.CacheTTLSeconds, ShouldEqual, 300)
		})
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TIERGATE_ADDR", ":7070")
	t.Setenv("TIERGATE_LOG_LEVEL", "debug")
	t.Setenv("TIERGATE_CACHE_MAX_ENTRIES", "250")
	t.Setenv("TIERGATE_BASE_SCORE", "40")

	Convey("Given TIERGATE_ environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		Convey("Then env values should win over defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.CacheMaxEntries, ShouldEqual, 250)
			So(cfg.BaseScore, ShouldEqual, 40.0)
		})

		Convey("Then untouched keys should keep their defaults", func() {
			So(cfg.QueueSize, ShouldEqual, 10_000)
			So(cfg.ShardCount, ShouldEqual, 8)
		})
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("addr: \":6060\"\ncache_ttl_seconds: 60\ntiers:\n  - bronze\n  - silver\n  - gold\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TIERGATE_CONFIG", path)

	Convey("Given a YAML config file", t, func() {
		cfg, err := config.Load(context.Background())

		Convey("Then the file values should layer over the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":6060")
			So(cfg.CacheTTLSeconds, ShouldEqual, 60)
			So(cfg.Tiers, ShouldResemble, []string{"bronze", "silver", "gold"})
		})
	})
}

func TestLoadFileEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":6060\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TIERGATE_CONFIG", path)
	t.Setenv("TIERGATE_ADDR", ":5050")

	Convey("Given both a file and an env override for the same key", t, func() {
		cfg, err := config.Load(context.Background())

		Convey("Then the env var should win", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":5050")
		})
	})
}

func TestLoadErrors(t *testing.T) {
	Convey("Given a missing config file", t, func() {
		t.Setenv("TIERGATE_CONFIG", "/nonexistent/config.yaml")

		_, err := config.Load(context.Background())

		Convey("Then Load should fail with the load sentinel", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
		})
	})
}

func TestLoadValidation(t *testing.T) {
	Convey("Given an out-of-range base score", t, func() {
		t.Setenv("TIERGATE_BASE_SCORE", "140")

		_, err := config.Load(context.Background())

		Convey("Then validation should reject it", func() {
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
