package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/growth/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New(ctx))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GROWTH_ADDR", ":8080")
			_ = os.Setenv("GROWTH_QUEUE_SIZE", "500")
			_ = os.Setenv("GROWTH_WORKER_COUNT", "16")
			_ = os.Setenv("GROWTH_LEDGER_DRIVER", "sqlite")
			_ = os.Setenv("GROWTH_SQLITE_PATH", "/tmp/ledger.db")
			_ = os.Setenv("GROWTH_S3_PATH_STYLE", "true")
			_ = os.Setenv("GROWTH_RENT_EXEMPTION_YEARS", "3")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.LedgerSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/ledger.db")
				convey.So(cfg.S3PathStyle, convey.ShouldBeTrue)
				convey.So(cfg.RentExemptionYears, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
# deployment settings
addr: ":9090"
queue_size: 300
assets_driver: s3
s3_bucket: badges
s3_endpoint: http://localhost:9000
reconcile_schedule: "0 */5 * * * *"
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GROWTH_CONFIG", tmpFile)
			_ = os.Setenv("GROWTH_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.AssetsDriver, convey.ShouldEqual, config.AssetsS3)
				convey.So(cfg.S3Bucket, convey.ShouldEqual, "badges")
				convey.So(cfg.S3Endpoint, convey.ShouldEqual, "http://localhost:9000")
				convey.So(cfg.ReconcileSchedule, convey.ShouldEqual, "0 */5 * * * *")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, config.New(ctx).WorkerCount)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GROWTH_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("GROWTH_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an invalid number", func() {
			_ = os.Setenv("GROWTH_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("GROWTH_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the postgres ledger has no dsn", func() {
			_ = os.Setenv("GROWTH_LEDGER_DRIVER", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"GROWTH_CONFIG",
		"GROWTH_ADDR",
		"GROWTH_QUEUE_SIZE",
		"GROWTH_WORKER_COUNT",
		"GROWTH_LEDGER_DRIVER",
		"GROWTH_SQLITE_PATH",
		"GROWTH_S3_PATH_STYLE",
		"GROWTH_RENT_EXEMPTION_YEARS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "growth-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
