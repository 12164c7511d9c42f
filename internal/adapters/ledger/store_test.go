package ledger_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/okian/growth/internal/adapters/ledger"
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

func TestStore(t *testing.T) {
	Convey("Given a ledger with a funded payer", t, func() {
		ctx := context.Background()
		s := ledger.NewStore(ledger.WithMaxGrowPerCall(64))
		payer := model.NewKey()
		So(s.Deposit(ctx, payer, 1000), ShouldBeNil)
		addr := model.NewKey()

		Convey("Create allocates zeroed data and moves the funding", func() {
			res, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				return tx.Create(addr, 16, payer, 300)
			})
			So(err, ShouldBeNil)
			So(res.Changed, ShouldContain, addr)
			So(res.Changed, ShouldContain, payer)

			acc, err := s.Get(ctx, addr)
			So(err, ShouldBeNil)
			So(acc.Data, ShouldResemble, make([]byte, 16))
			So(acc.Lamports, ShouldEqual, 300)
			p, _ := s.Get(ctx, payer)
			So(p.Lamports, ShouldEqual, 700)
		})

		Convey("Creating twice fails with ErrAccountExists", func() {
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				if err := tx.Create(addr, 4, payer, 0); err != nil {
					return err
				}
				return tx.Create(addr, 4, payer, 0)
			})
			So(errors.Is(err, ledger.ErrAccountExists), ShouldBeTrue)
			So(s.Len(), ShouldEqual, 1)
		})

		Convey("A failing transaction leaves no trace", func() {
			boom := errors.New("boom")
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				if err := tx.Create(addr, 8, payer, 500); err != nil {
					return err
				}
				return boom
			})
			So(errors.Is(err, boom), ShouldBeTrue)
			_, err = s.Get(ctx, addr)
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			p, _ := s.Get(ctx, payer)
			So(p.Lamports, ShouldEqual, 1000)
		})

		Convey("Overdrawn transfers report ErrInsufficientFunds", func() {
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				return tx.Create(addr, 8, payer, 1001)
			})
			So(errors.Is(err, ledger.ErrInsufficientFunds), ShouldBeTrue)
		})

		Convey("Given an existing account", func() {
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				if err := tx.Create(addr, 4, payer, 10); err != nil {
					return err
				}
				return tx.Write(addr, []byte{1, 2, 3, 4})
			})
			So(err, ShouldBeNil)

			Convey("Resize keeps existing bytes and zero fills the rest", func() {
				_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
					return tx.Resize(addr, 10)
				})
				So(err, ShouldBeNil)
				acc, _ := s.Get(ctx, addr)
				So(acc.Data, ShouldResemble, []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0})
			})

			Convey("Resize beyond the per-call limit is refused", func() {
				_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
					return tx.Resize(addr, 4+65)
				})
				So(errors.Is(err, ledger.ErrGrowTooLarge), ShouldBeTrue)
			})

			Convey("Shrinking is refused", func() {
				_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
					return tx.Resize(addr, 2)
				})
				So(errors.Is(err, ledger.ErrInvalidResize), ShouldBeTrue)
			})

			Convey("Writes must fit the current size", func() {
				_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
					return tx.Write(addr, make([]byte, 5))
				})
				So(errors.Is(err, ledger.ErrDataTooLarge), ShouldBeTrue)
			})

			Convey("Reads inside a transaction see staged writes", func() {
				_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
					if err := tx.Write(addr, []byte{9}); err != nil {
						return err
					}
					data, err := tx.Read(addr)
					So(data, ShouldResemble, []byte{9, 2, 3, 4})
					size, _ := tx.Size(addr)
					So(size, ShouldEqual, 4)
					bal, _ := tx.Balance(addr)
					So(bal, ShouldEqual, 10)
					return err
				})
				So(err, ShouldBeNil)
			})

			Convey("A transaction handle is dead after commit", func() {
				var leaked ledger.Tx
				_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
					leaked = tx
					return nil
				})
				So(err, ShouldBeNil)
				So(errors.Is(leaked.Write(addr, []byte{0}), ledger.ErrTxDone), ShouldBeTrue)
			})
		})

		Convey("A cancelled context aborts before running", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			ran := false
			_, err := s.RunInTransaction(cctx, func(ledger.Tx) error {
				ran = true
				return nil
			})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(ran, ShouldBeFalse)
		})

		Convey("Concurrent transfers are serialized", func() {
			sink := model.NewKey()
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = s.RunInTransaction(ctx, func(tx ledger.Tx) error {
						return tx.Transfer(payer, sink, 10)
					})
				}()
			}
			wg.Wait()
			p, _ := s.Get(ctx, payer)
			k, _ := s.Get(ctx, sink)
			So(p.Lamports, ShouldEqual, 500)
			So(k.Lamports, ShouldEqual, 500)
		})

		Convey("Import replaces the committed state", func() {
			other := model.NewKey()
			s.Import([]ledger.Account{{Address: other, Lamports: 5, Data: []byte{7}}})
			So(s.Len(), ShouldEqual, 1)
			accs := s.Accounts(ctx)
			So(accs, ShouldHaveLength, 1)
			So(accs[0].Address, ShouldEqual, other)
			So(s.Accounts(ctx, payer), ShouldBeEmpty)
		})
	})
}

func TestCommitHook(t *testing.T) {
	Convey("Given a ledger with a commit hook", t, func() {
		ctx := context.Background()
		var (
			seen []ledger.Account
			veto error
		)
		s := ledger.NewStore(ledger.WithCommitHook(func(_ context.Context, changed []ledger.Account) error {
			seen = changed
			return veto
		}))
		payer, addr := model.NewKey(), model.NewKey()
		So(s.Deposit(ctx, payer, 100), ShouldBeNil)

		Convey("The hook sees the staged accounts before they apply", func() {
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				return tx.Create(addr, 2, payer, 40)
			})
			So(err, ShouldBeNil)
			So(seen, ShouldHaveLength, 2)
			So(seen[0].Address, ShouldEqual, addr)
			So(seen[0].Lamports, ShouldEqual, 40)
			So(seen[1].Lamports, ShouldEqual, 60)
		})

		Convey("A failing hook aborts the transaction", func() {
			veto = errors.New("disk full")
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				return tx.Create(addr, 2, payer, 40)
			})
			So(errors.Is(err, veto), ShouldBeTrue)
			_, err = s.Get(ctx, addr)
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			p, _ := s.Get(ctx, payer)
			So(p.Lamports, ShouldEqual, 100)
		})

		Convey("Read-only transactions skip the hook", func() {
			seen = nil
			_, err := s.RunInTransaction(ctx, func(tx ledger.Tx) error {
				_, err := tx.Balance(payer)
				return err
			})
			So(err, ShouldBeNil)
			So(seen, ShouldBeNil)
		})
	})
}
