package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/adapters/ledger"
	"github.com/okian/growth/internal/adapters/notify"
	service "github.com/okian/growth/internal/app"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/growth"
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

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) LevelChanged(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) Close() error { return nil }

func (r *recordingNotifier) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type fixture struct {
	ctx       context.Context
	svc       *service.Service
	store     *ledger.Store
	catalog   *assets.Catalog
	notifier  *recordingNotifier
	authority model.Key
	now       *int64
	failWrite *bool
	mu        *sync.Mutex
}

var errDiskFull = errors.New("disk full")

func (f fixture) setFailWrite(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.failWrite = fail
}

func (f fixture) setNow(ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.now = ts
}

func newFixture(opts ...service.Option) fixture {
	f := fixture{
		ctx:       context.Background(),
		catalog:   assets.NewMemory(),
		notifier:  &recordingNotifier{},
		authority: model.NewKey(),
		now:       new(int64),
		failWrite: new(bool),
		mu:        &sync.Mutex{},
	}
	f.store = ledger.NewStore(ledger.WithCommitHook(func(context.Context, []ledger.Account) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if *f.failWrite {
			return errDiskFull
		}
		return nil
	}))
	*f.now = 1000
	clock := gating.ClockFunc(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return time.Unix(*f.now, 0)
	})
	opts = append([]service.Option{
		service.WithClock(clock),
		service.WithNotifier(f.notifier),
		service.WithWorkerCount(4),
	}, opts...)
	f.svc = service.New(f.store, f.catalog, opts...)
	So(f.svc.Deposit(f.ctx, f.authority, 1_000_000_000_000), ShouldBeNil)
	return f
}

func acme() service.OrganizationInput {
	return service.OrganizationInput{
		Name:       "Acme",
		MinReviews: 1,
		Weights:    []float64{1, 1, 1, 1},
		Ranges:     []uint8{2},
		Levels:     [][]float64{{1, 2, 3}, {1, 2, 3}},
		Domain:     "https://badges.test",
		LevelWait:  60,
	}
}

func TestCreateOrganization(t *testing.T) {
	Convey("Given a funded authority", t, func() {
		f := newFixture()
		rent := growth.DefaultRent()

		Convey("A valid organization is stored and fully funded", func() {
			org, err := f.svc.CreateOrganization(f.ctx, f.authority, acme())
			So(err, ShouldBeNil)
			So(org.Address, ShouldEqual, model.RegistryAddress(org.Registry.Mint, f.authority))

			reg, err := f.svc.Registry(f.ctx, org.Address)
			So(err, ShouldBeNil)
			So(reg.Name, ShouldEqual, "Acme")
			So(reg.Authority, ShouldEqual, f.authority)
			So(reg.Levels, ShouldResemble, [][]float64{{1, 2, 3}, {1, 2, 3}})

			acc, err := f.store.Get(f.ctx, org.Address)
			So(err, ShouldBeNil)
			So(len(acc.Data), ShouldEqual, len(model.EncodeRegistry(reg)))
			So(acc.Lamports, ShouldEqual, rent.Minimum(len(acc.Data)))

			md, err := f.catalog.Get(f.ctx, org.Registry.Mint)
			So(err, ShouldBeNil)
			So(md.Name, ShouldEqual, "Acme Organization")
			So(md.Symbol, ShouldEqual, assets.SymbolOrganization)
			So(md.URI, ShouldEqual, "https://badges.test/org.json")
		})

		Convey("A mismatched ladder count is rejected before anything is written", func() {
			in := acme()
			in.Levels = in.Levels[:1]
			_, err := f.svc.CreateOrganization(f.ctx, f.authority, in)
			So(errors.Is(err, model.ErrShapeMismatch), ShouldBeTrue)
			So(f.store.Len(), ShouldEqual, 1)
		})

		Convey("An authority that cannot pay leaves no trace", func() {
			poor := model.NewKey()
			So(f.svc.Deposit(f.ctx, poor, 10), ShouldBeNil)
			in := acme()
			_, err := f.svc.CreateOrganization(f.ctx, poor, in)
			So(errors.Is(err, ledger.ErrInsufficientFunds), ShouldBeTrue)
			So(f.store.Len(), ShouldEqual, 2)
			bal, _ := f.svc.Balance(f.ctx, poor)
			So(bal, ShouldEqual, 10)
		})

		Convey("The same mint cannot be registered twice by one authority", func() {
			org, err := f.svc.CreateOrganization(f.ctx, f.authority, acme())
			So(err, ShouldBeNil)
			in := acme()
			in.Mint = org.Registry.Mint
			_, err = f.svc.CreateOrganization(f.ctx, f.authority, in)
			So(errors.Is(err, ledger.ErrAccountExists), ShouldBeTrue)
		})
	})
}

func TestLeveling(t *testing.T) {
	Convey("Given an organization with one applicant", t, func() {
		f := newFixture()
		org, err := f.svc.CreateOrganization(f.ctx, f.authority, acme())
		So(err, ShouldBeNil)
		alice := model.NewKey()
		app, err := f.svc.Register(f.ctx, f.authority, org.Address, service.ApplicantInput{
			Applicant: alice, Name: "alice", Levels: []uint8{0, 0},
		})
		So(err, ShouldBeNil)
		So(app.Created, ShouldBeTrue)

		submit := func(scores ...float64) gating.Outcome {
			out, err := f.svc.ReceiveScore(f.ctx, model.Submission{Org: org.Address, Applicant: alice, Scores: scores})
			So(err, ShouldBeNil)
			return out
		}

		Convey("Registration creates an unverified badge in the organization collection", func() {
			md, err := f.svc.Badge(f.ctx, org.Address, alice)
			So(err, ShouldBeNil)
			So(md.Name, ShouldEqual, "Acme - alice")
			So(md.Symbol, ShouldEqual, assets.SymbolScore)
			So(md.URI, ShouldEqual, "https://badges.test/0-0.json")
			So(md.Collection, ShouldEqual, org.Registry.Mint)
			So(md.Verified, ShouldBeFalse)
		})

		Convey("Registering again returns the existing record", func() {
			again, err := f.svc.Register(f.ctx, f.authority, org.Address, service.ApplicantInput{
				Applicant: alice, Name: "other", Levels: []uint8{2, 2},
			})
			So(err, ShouldBeNil)
			So(again.Created, ShouldBeFalse)
			So(again.Record.Name, ShouldEqual, "alice")
			So(again.Record.Levels, ShouldResemble, []uint8{0, 0})
		})

		Convey("Only the authority may register", func() {
			_, err := f.svc.Register(f.ctx, model.NewKey(), org.Address, service.ApplicantInput{
				Applicant: model.NewKey(), Name: "mallory", Levels: []uint8{0, 0},
			})
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("Starting levels must match the group count", func() {
			_, err := f.svc.Register(f.ctx, f.authority, org.Address, service.ApplicantInput{
				Applicant: model.NewKey(), Name: "bob", Levels: []uint8{0},
			})
			So(errors.Is(err, model.ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("A submission commits one step and skips publication while unverified", func() {
			out := submit(2, 2, 2, 2)
			So(out.Committed, ShouldBeTrue)
			So(out.Published, ShouldBeFalse)
			So(out.Levels, ShouldResemble, []uint8{1, 0})

			rec, err := f.svc.Score(f.ctx, org.Address, alice)
			So(err, ShouldBeNil)
			So(rec.Levels, ShouldResemble, []uint8{1, 0})
			So(rec.LastUpdate, ShouldEqual, 1000)
			So(rec.ScoresSum, ShouldResemble, []float64{2, 2, 2, 2})
			So(rec.ReviewsReceived, ShouldResemble, []uint16{1, 1, 1, 1})
			So(rec.Scores, ShouldResemble, []float64{2, 2})

			md, _ := f.svc.Badge(f.ctx, org.Address, alice)
			So(md.URI, ShouldEqual, "https://badges.test/0-0.json")

			events := f.notifier.all()
			So(events, ShouldHaveLength, 1)
			So(events[0].From, ShouldResemble, []int{0, 0})
			So(events[0].To, ShouldResemble, []int{1, 0})
			So(events[0].Path, ShouldEqual, gating.PathSubmit)

			Convey("A second submission inside the cooldown is discarded", func() {
				f.setNow(1030)
				out := submit(2, 2, 2, 2)
				So(out.Committed, ShouldBeFalse)
				So(out.Reason, ShouldEqual, gating.ReasonCooldown)
				rec, _ := f.svc.Score(f.ctx, org.Address, alice)
				So(rec.Levels, ShouldResemble, []uint8{1, 0})
				So(rec.LastUpdate, ShouldEqual, 1000)
				So(rec.ReviewsReceived, ShouldResemble, []uint16{2, 2, 2, 2})

				Convey("And the sweep commits it once the cooldown has elapsed", func() {
					f.setNow(2000)
					changed, err := f.svc.Sweep(f.ctx)
					So(err, ShouldBeNil)
					So(changed, ShouldEqual, 1)
					rec, _ := f.svc.Score(f.ctx, org.Address, alice)
					So(rec.Levels, ShouldResemble, []uint8{1, 1})
					So(rec.ReviewsReceived, ShouldResemble, []uint16{2, 2, 2, 2})
				})
			})

			Convey("After verification the next commit is published", func() {
				So(f.svc.Verify(f.ctx, f.authority, org.Address, alice), ShouldBeNil)
				So(f.svc.Verify(f.ctx, f.authority, org.Address, alice), ShouldBeNil)
				f.setNow(1100)
				out := submit(2, 2, 2, 2)
				So(out.Committed, ShouldBeTrue)
				So(out.Published, ShouldBeTrue)
				So(out.URI, ShouldEqual, "https://badges.test/1-1.json")
				md, _ := f.svc.Badge(f.ctx, org.Address, alice)
				So(md.URI, ShouldEqual, "https://badges.test/1-1.json")
				So(md.Verified, ShouldBeTrue)
			})
		})

		Convey("A failed commit restores the published badge", func() {
			So(f.svc.Verify(f.ctx, f.authority, org.Address, alice), ShouldBeNil)
			f.setFailWrite(true)
			_, err := f.svc.ReceiveScore(f.ctx, model.Submission{Org: org.Address, Applicant: alice, Scores: []float64{2, 2, 2, 2}})
			So(errors.Is(err, errDiskFull), ShouldBeTrue)

			md, _ := f.svc.Badge(f.ctx, org.Address, alice)
			So(md.URI, ShouldEqual, "https://badges.test/0-0.json")
			rec, _ := f.svc.Score(f.ctx, org.Address, alice)
			So(rec.Levels, ShouldResemble, []uint8{0, 0})
			So(f.notifier.all(), ShouldBeEmpty)

			_, err = f.svc.UpdateScores(f.ctx, f.authority, org.Address, alice, gating.OverrideInput{
				ScoresSum:       []float64{5, 5, 5, 5},
				ReviewsReceived: []uint16{1, 1, 1, 1},
				Levels:          []uint8{0, 0},
			})
			So(errors.Is(err, errDiskFull), ShouldBeTrue)
			md, _ = f.svc.Badge(f.ctx, org.Address, alice)
			So(md.URI, ShouldEqual, "https://badges.test/0-0.json")

			f.setFailWrite(false)
			out := submit(2, 2, 2, 2)
			So(out.Published, ShouldBeTrue)
			md, _ = f.svc.Badge(f.ctx, org.Address, alice)
			So(md.URI, ShouldEqual, "https://badges.test/1-0.json")
		})

		Convey("The sweep leaves settled records alone", func() {
			bob := model.NewKey()
			_, err := f.svc.Register(f.ctx, f.authority, org.Address, service.ApplicantInput{
				Applicant: bob, Name: "bob", Levels: []uint8{0, 0}, LastUpdate: 0,
			})
			So(err, ShouldBeNil)

			f.setNow(5000)
			changed, err := f.svc.Sweep(f.ctx)
			So(err, ShouldBeNil)
			So(changed, ShouldEqual, 0)
			rec, _ := f.svc.Score(f.ctx, org.Address, bob)
			So(rec.LastUpdate, ShouldEqual, 0)
			rec, _ = f.svc.Score(f.ctx, org.Address, alice)
			So(rec.LastUpdate, ShouldEqual, 0)

			f.setNow(5010)
			out, err := f.svc.ReceiveScore(f.ctx, model.Submission{Org: org.Address, Applicant: bob, Scores: []float64{2, 2, 2, 2}})
			So(err, ShouldBeNil)
			So(out.Committed, ShouldBeTrue)
			So(out.Levels, ShouldResemble, []uint8{1, 0})
		})

		Convey("Only the authority may verify", func() {
			err := f.svc.Verify(f.ctx, model.NewKey(), org.Address, alice)
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("A score vector of the wrong length changes nothing", func() {
			_, err := f.svc.ReceiveScore(f.ctx, model.Submission{Org: org.Address, Applicant: alice, Scores: []float64{1}})
			So(errors.Is(err, model.ErrShapeMismatch), ShouldBeTrue)
			rec, _ := f.svc.Score(f.ctx, org.Address, alice)
			So(rec.ScoresSum, ShouldResemble, []float64{0, 0, 0, 0})
		})

		Convey("Unknown applicants are not found", func() {
			_, err := f.svc.ReceiveScore(f.ctx, model.Submission{Org: org.Address, Applicant: model.NewKey(), Scores: []float64{1, 1, 1, 1}})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = f.svc.Score(f.ctx, org.Address, model.NewKey())
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("Reviews sent are counted for the authority only", func() {
			n, err := f.svc.SendScore(f.ctx, f.authority, org.Address, alice)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			n, err = f.svc.SendScore(f.ctx, f.authority, org.Address, alice)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			_, err = f.svc.SendScore(f.ctx, model.NewKey(), org.Address, alice)
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			rec, _ := f.svc.Score(f.ctx, org.Address, alice)
			So(rec.ReviewsSent, ShouldEqual, 2)
		})

		Convey("The override commits immediately and honours explicit levels", func() {
			So(f.svc.Verify(f.ctx, f.authority, org.Address, alice), ShouldBeNil)
			out, err := f.svc.UpdateScores(f.ctx, f.authority, org.Address, alice, gating.OverrideInput{
				ScoresSum:       []float64{10, 10, 10, 10},
				ReviewsReceived: []uint16{2, 2, 2, 2},
				LastUpdate:      500,
				Levels:          []uint8{3, 3},
				OverrideLevels:  true,
			})
			So(err, ShouldBeNil)
			So(out.Committed, ShouldBeTrue)
			So(out.Levels, ShouldResemble, []uint8{3, 3})

			rec, _ := f.svc.Score(f.ctx, org.Address, alice)
			So(rec.Levels, ShouldResemble, []uint8{3, 3})
			So(rec.LastUpdate, ShouldEqual, 500)
			So(rec.Scores, ShouldResemble, []float64{5, 5})

			md, _ := f.svc.Badge(f.ctx, org.Address, alice)
			So(md.URI, ShouldEqual, "https://badges.test/3-3.json")
			events := f.notifier.all()
			So(events, ShouldHaveLength, 1)
			So(events[0].Path, ShouldEqual, gating.PathOverride)
		})

		Convey("The override is refused to anyone but the authority", func() {
			_, err := f.svc.UpdateScores(f.ctx, model.NewKey(), org.Address, alice, gating.OverrideInput{
				ScoresSum:       []float64{0, 0, 0, 0},
				ReviewsReceived: []uint16{0, 0, 0, 0},
				Levels:          []uint8{0, 0},
			})
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("Concurrent submissions all accumulate", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = f.svc.ReceiveScore(f.ctx, model.Submission{Org: org.Address, Applicant: alice, Scores: []float64{1, 2, 0, 4}})
				}()
			}
			wg.Wait()

			rec, err := f.svc.Score(f.ctx, org.Address, alice)
			So(err, ShouldBeNil)
			So(rec.ScoresSum, ShouldResemble, []float64{20, 40, 0, 80})
			So(rec.ReviewsReceived, ShouldResemble, []uint16{20, 20, 0, 20})
			So(rec.CheckShape(org.Registry), ShouldBeNil)
			So(rec.Levels, ShouldResemble, []uint8{1, 0})
		})
	})
}

func TestAsyncIngestion(t *testing.T) {
	Convey("Given an organization with one applicant", t, func() {
		f := newFixture(service.WithQueueSize(100), service.WithDedupeSize(100))
		org, err := f.svc.CreateOrganization(f.ctx, f.authority, acme())
		So(err, ShouldBeNil)
		alice := model.NewKey()
		_, err = f.svc.Register(f.ctx, f.authority, org.Address, service.ApplicantInput{
			Applicant: alice, Name: "alice", Levels: []uint8{0, 0},
		})
		So(err, ShouldBeNil)
		sub := func(id string) model.Submission {
			return model.Submission{ID: id, Org: org.Address, Applicant: alice, Scores: []float64{1, 1, 1, 1}}
		}

		Convey("Enqueue before Start is refused", func() {
			_, _, err := f.svc.Enqueue(f.ctx, sub("a"))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("Incomplete submissions are refused", func() {
			_, _, err := f.svc.Enqueue(f.ctx, model.Submission{Org: org.Address})
			So(errors.Is(err, service.ErrInvalidSubmission), ShouldBeTrue)
		})

		Convey("Once started", func() {
			So(f.svc.Start(f.ctx), ShouldBeNil)
			So(f.svc.Start(f.ctx), ShouldBeNil)

			Convey("Queued reviews are applied once per id", func() {
				var wg sync.WaitGroup
				for i := 0; i < 30; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, _, _ = f.svc.Enqueue(f.ctx, sub(fmt.Sprintf("r%d", i%10)))
					}(i)
				}
				wg.Wait()

				_, dup, err := f.svc.Enqueue(f.ctx, sub("r0"))
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)

				id, dup, err := f.svc.Enqueue(f.ctx, model.Submission{Org: org.Address, Applicant: alice, Scores: []float64{1, 1, 1, 1}})
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(id, ShouldNotBeEmpty)

				So(f.svc.Stop(f.ctx), ShouldBeNil)
				rec, err := f.svc.Score(f.ctx, org.Address, alice)
				So(err, ShouldBeNil)
				So(rec.ReviewsReceived, ShouldResemble, []uint16{11, 11, 11, 11})

				stats := f.svc.GetStats()
				So(stats["started"], ShouldEqual, false)
				So(stats["organizations"], ShouldEqual, 1)
				So(stats["scoreRecords"], ShouldEqual, 1)
			})

			Convey("A rejected review may be retried under the same id", func() {
				bad := model.Submission{ID: "x", Org: org.Address, Applicant: model.NewKey(), Scores: []float64{1, 1, 1, 1}}
				_, dup, err := f.svc.Enqueue(f.ctx, bad)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(f.svc.Stop(f.ctx), ShouldBeNil)

				So(f.svc.Start(f.ctx), ShouldBeNil)
				_, dup, err = f.svc.Enqueue(f.ctx, bad)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(f.svc.Stop(f.ctx), ShouldBeNil)
			})

			Reset(func() {
				_ = f.svc.Stop(f.ctx)
			})
		})
	})

	Convey("An invalid sweep schedule fails Start", t, func() {
		f := newFixture(service.WithReconcileSchedule("not a schedule"))
		So(f.svc.Start(f.ctx), ShouldNotBeNil)
		So(f.svc.GetStats()["started"], ShouldEqual, false)
	})
}
