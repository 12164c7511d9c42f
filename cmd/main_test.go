package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/growth/internal/adapters/http/api"
	"github.com/okian/growth/internal/config"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestBuild(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.ReconcileSchedule = ""

		convey.Convey("The in-memory service can be assembled and served", func() {
			svc, err := build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Close(ctx) }()

			mux := http.NewServeMux()
			api.NewServer(svc, svc).Register(ctx, mux)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("The sqlite ledger keeps state across restarts", func() {
			cfg.LedgerDriver = config.LedgerSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")
			payer := model.NewKey()

			svc, err := build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Deposit(ctx, payer, 42), convey.ShouldBeNil)
			convey.So(svc.Close(ctx), convey.ShouldBeNil)

			svc, err = build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = svc.Close(ctx) }()
			bal, err := svc.Balance(ctx, payer)
			convey.So(err, convey.ShouldBeNil)
			convey.So(bal, convey.ShouldEqual, 42)
		})

		convey.Convey("Unknown drivers are rejected", func() {
			cfg.LedgerDriver = "etcd"
			_, err := build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("The background updaters stop with their context", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		cfg := config.New(ctx)
		cfg.ReconcileSchedule = ""
		svc, err := build(ctx, cfg, logger.Get())
		convey.So(err, convey.ShouldBeNil)

		convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
