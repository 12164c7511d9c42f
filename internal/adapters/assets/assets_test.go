package assets_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/okian/growth/internal/adapters/assets"
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

func TestCatalog(t *testing.T) {
	Convey("Given an in-memory catalog", t, func() {
		ctx := context.Background()
		stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		c := assets.NewMemory(assets.WithNow(func() time.Time { return stamp }))
		collection, mint := model.NewKey(), model.NewKey()

		So(c.CreateMetadata(ctx, assets.Metadata{
			Mint:       mint,
			Name:       "Acme - ada",
			Symbol:     assets.SymbolScore,
			URI:        "https://b.test/0-0.json",
			Collection: collection,
			Verified:   true,
		}), ShouldBeNil)

		Convey("New metadata starts unverified", func() {
			md, err := c.Get(ctx, mint)
			So(err, ShouldBeNil)
			So(md.Verified, ShouldBeFalse)
			So(md.UpdatedAt, ShouldEqual, stamp)
			ok, err := c.IsCollectionVerified(ctx, mint)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Creating the same mint twice fails", func() {
			err := c.CreateMetadata(ctx, assets.Metadata{Mint: mint})
			So(errors.Is(err, assets.ErrExists), ShouldBeTrue)
		})

		Convey("Verification requires the right collection and is idempotent", func() {
			err := c.VerifyCollectionItem(ctx, mint, model.NewKey())
			So(errors.Is(err, assets.ErrCollectionMismatch), ShouldBeTrue)

			So(c.VerifyCollectionItem(ctx, mint, collection), ShouldBeNil)
			So(c.VerifyCollectionItem(ctx, mint, collection), ShouldBeNil)
			ok, _ := c.IsCollectionVerified(ctx, mint)
			So(ok, ShouldBeTrue)
		})

		Convey("A collection root is never a verified member", func() {
			root := model.NewKey()
			So(c.CreateMetadata(ctx, assets.Metadata{Mint: root, Symbol: assets.SymbolOrganization}), ShouldBeNil)
			ok, err := c.IsCollectionVerified(ctx, root)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("UpdateMetadata rewrites the uri", func() {
			So(c.UpdateMetadata(ctx, mint, "https://b.test/1-0.json"), ShouldBeNil)
			md, _ := c.Get(ctx, mint)
			So(md.URI, ShouldEqual, "https://b.test/1-0.json")
			So(md.Name, ShouldEqual, "Acme - ada")
		})

		Convey("Unknown mints report ErrNotFound", func() {
			_, err := c.Get(ctx, model.NewKey())
			So(errors.Is(err, assets.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			So(errors.Is(c.UpdateMetadata(ctx, model.NewKey(), "x"), assets.ErrNotFound), ShouldBeTrue)
		})
	})
}
