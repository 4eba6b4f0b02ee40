package credential

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/laiskydev/respgate/internal/config"
)

func TestStoreValidate(t *testing.T) {
	Convey("Given a store configured with two client keys", t, func() {
		cfg := &config.Config{
			Env:                 "production",
			ProxyAPIKey:         "correct-horse-battery-staple-9f3a, second-client-key-7d2c8e1b",
			AzureOpenAIAPIKey:   "azure-static-key",
			AzureADTenantID:     "",
			AzureADClientID:     "",
			AzureADClientSecret: "",
		}
		store, err := New(cfg)
		So(err, ShouldBeNil)
		So(store.Len(), ShouldEqual, 2)

		Convey("a correctly presented key validates", func() {
			So(store.Validate("correct-horse-battery-staple-9f3a"), ShouldBeTrue)
		})

		Convey("the second configured key also validates", func() {
			So(store.Validate("second-client-key-7d2c8e1b"), ShouldBeTrue)
		})

		Convey("an unknown key is rejected", func() {
			So(store.Validate("not-a-real-key-at-all"), ShouldBeFalse)
		})

		Convey("validating bumps usage count and last-used time", func() {
			before := store.records[0].UsageCount
			store.Validate("correct-horse-battery-staple-9f3a")
			So(store.records[0].UsageCount, ShouldEqual, before+1)
			So(store.records[0].LastUsedAt.IsZero(), ShouldBeFalse)
		})

		Convey("the upstream handle carries the static Azure key", func() {
			handle := store.UpstreamHandle()
			So(handle.AzureAPIKey, ShouldEqual, "azure-static-key")
			So(handle.UsesAzureAD(), ShouldBeFalse)
		})
	})

	Convey("Given a store configured with an Azure AD upstream", t, func() {
		cfg := &config.Config{
			Env:                 "test",
			AzureADTenantID:     "tenant-1",
			AzureADClientID:     "client-1",
			AzureADClientSecret: "super-secret-value-9f3a7d2c",
		}
		store, err := New(cfg)
		So(err, ShouldBeNil)

		Convey("the upstream handle reports Azure AD mode", func() {
			So(store.UpstreamHandle().UsesAzureAD(), ShouldBeTrue)
		})
	})

	Convey("Given a placeholder key", t, func() {
		cfg := &config.Config{Env: "production", ProxyAPIKey: "test-key-123"}

		Convey("startup fails", func() {
			_, err := New(cfg)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given no configured keys outside test mode", t, func() {
		cfg := &config.Config{Env: "production", ProxyAPIKey: ""}

		Convey("startup fails", func() {
			_, err := New(cfg)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given no configured keys in test mode", t, func() {
		cfg := &config.Config{Env: "test", ProxyAPIKey: ""}

		Convey("startup succeeds with zero records", func() {
			store, err := New(cfg)
			So(err, ShouldBeNil)
			So(store.Len(), ShouldEqual, 0)
		})

		Convey("validation against an empty store always rejects", func() {
			store, _ := New(cfg)
			So(store.Validate("anything"), ShouldBeFalse)
		})
	})
}
