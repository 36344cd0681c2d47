package identity_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/identity"
	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/memstore/inmemory"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		store    *inmemory.Store
		resolver *identity.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()

		var err error
		resolver, err = identity.NewResolver(store, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		resolver.Close()
	})

	It("resolves a name already known to the store", func() {
		Expect(store.AddEpisode(ctx, memstore.Episode{
			Body: "Sam moved to Lisbon last spring.",
		})).To(Succeed())

		entity, err := store.FindEntity(ctx, "Sam")
		Expect(err).NotTo(HaveOccurred())

		handle, err := resolver.ResolveOrCreate(ctx, "Sam")
		Expect(err).NotTo(HaveOccurred())
		Expect(handle).To(Equal(entity.UUID))

		// No anchor episode was needed.
		Expect(store.Count()).To(Equal(1))
	})

	It("anchors an unknown name with a creation episode", func() {
		handle, err := resolver.ResolveOrCreate(ctx, "Riley")
		Expect(err).NotTo(HaveOccurred())
		Expect(handle).NotTo(BeEmpty())

		episodes := store.Episodes()
		Expect(episodes).To(HaveLen(1))
		Expect(episodes[0].Name).To(Equal("User Creation"))
		Expect(episodes[0].Body).To(Equal("Riley started a chat."))
		Expect(episodes[0].Source).To(Equal(memstore.SourceText))
	})

	It("is idempotent: repeated resolution writes at most one anchor", func() {
		first, err := resolver.ResolveOrCreate(ctx, "Riley")
		Expect(err).NotTo(HaveOccurred())

		second, err := resolver.ResolveOrCreate(ctx, "Riley")
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
		Expect(store.Count()).To(Equal(1))
	})

	It("resolves lowercase input to the same identity", func() {
		first, err := resolver.ResolveOrCreate(ctx, "riley")
		Expect(err).NotTo(HaveOccurred())

		second, err := resolver.ResolveOrCreate(ctx, "Riley")
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
		Expect(store.Count()).To(Equal(1))
	})

	It("rejects empty names", func() {
		_, err := resolver.ResolveOrCreate(ctx, "   ")
		Expect(err).To(MatchError(identity.ErrEmptyUserName))
	})

	It("reports creation failure when the name cannot be derived", func() {
		_, err := resolver.ResolveOrCreate(ctx, "42")
		Expect(err).To(MatchError(identity.ErrIdentityCreation))
	})
})
