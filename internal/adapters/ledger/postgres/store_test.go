package postgres_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/okian/growth/internal/adapters/ledger"
	"github.com/okian/growth/internal/adapters/ledger/postgres"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("GROWTH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GROWTH_TEST_POSTGRES_DSN not set")
	}

	Convey("Given a postgres ledger", t, func() {
		ctx := context.Background()
		s, err := postgres.NewStore(ctx, dsn)
		So(err, ShouldBeNil)
		So(s.Driver(), ShouldEqual, "postgres")

		payer, addr := model.NewKey(), model.NewKey()
		So(s.Deposit(ctx, payer, 500), ShouldBeNil)
		_, err = s.RunInTransaction(ctx, func(tx ledger.Tx) error {
			return tx.Create(addr, 8, payer, 200)
		})
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Committed accounts are reloaded", func() {
			reopened, err := postgres.NewStore(ctx, dsn)
			So(err, ShouldBeNil)
			defer func() {
				_, _ = reopened.DB().ExecContext(ctx, `DELETE FROM accounts WHERE address IN ($1, $2)`, payer.String(), addr.String())
				_ = reopened.Close()
			}()
			acc, err := reopened.Get(ctx, addr)
			So(err, ShouldBeNil)
			So(acc.Data, ShouldResemble, make([]byte, 8))
			So(acc.Lamports, ShouldEqual, 200)
		})
	})
}
