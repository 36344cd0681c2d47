package persona_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/memstore/graph"
	"github.com/engramchat/engram/pkg/persona"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		mem   *graph.Store
		store *persona.Store
	)

	validInput := persona.Input{
		GivenName:  "Maya",
		Surname:    "Chen",
		Age:        34,
		Profession: "marine biologist",
		Hobbies:    "freediving, baking",
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		mem, err = graph.NewStore(graph.Config{DBPath: ":memory:"}, nil, nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		store, err = persona.NewStore(ctx, mem, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mem.Close()
	})

	Describe("Create", func() {
		It("creates a persona with a minted handle and derived full name", func() {
			p, err := store.Create(ctx, validInput)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Handle).NotTo(BeEmpty())
			Expect(p.FullName).To(Equal("Maya Chen"))
			Expect(p.Age).To(Equal(34))
			Expect(p.CreatedAt).To(BeTemporally("~", time.Now(), time.Minute))
		})

		It("rejects invalid input with every violated rule", func() {
			_, err := store.Create(ctx, persona.Input{
				GivenName: "  ",
				Surname:   "Chen",
				Age:       -3,
			})

			var invalid *persona.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Reasons).To(HaveLen(3))
			Expect(invalid.Input.Surname).To(Equal("Chen"))
			Expect(invalid.Input.Age).To(Equal(-3))
		})

		It("writes nothing on validation failure", func() {
			_, err := store.Create(ctx, persona.Input{})
			Expect(err).To(HaveOccurred())

			personas, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(personas).To(BeEmpty())
		})
	})

	Describe("List", func() {
		It("returns personas newest first", func() {
			first, err := store.Create(ctx, validInput)
			Expect(err).NotTo(HaveOccurred())

			// Creation timestamps order the listing.
			time.Sleep(2 * time.Millisecond)

			second, err := store.Create(ctx, persona.Input{
				GivenName:  "Theo",
				Surname:    "Okafor",
				Age:        41,
				Profession: "carpenter",
			})
			Expect(err).NotTo(HaveOccurred())

			personas, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(personas).To(HaveLen(2))
			Expect(personas[0].Handle).To(Equal(second.Handle))
			Expect(personas[1].Handle).To(Equal(first.Handle))
		})
	})

	Describe("Get", func() {
		It("round-trips every field", func() {
			created, err := store.Create(ctx, validInput)
			Expect(err).NotTo(HaveOccurred())

			got, err := store.Get(ctx, created.Handle)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.GivenName).To(Equal("Maya"))
			Expect(got.Surname).To(Equal("Chen"))
			Expect(got.FullName).To(Equal("Maya Chen"))
			Expect(got.Age).To(Equal(34))
			Expect(got.Profession).To(Equal("marine biologist"))
			Expect(got.Hobbies).To(Equal("freediving, baking"))
		})

		It("returns NotFoundError for unknown handles", func() {
			_, err := store.Get(ctx, "nope")

			var notFound persona.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("Find", func() {
		It("finds by full name case-insensitively", func() {
			created, err := store.Create(ctx, validInput)
			Expect(err).NotTo(HaveOccurred())

			got, err := store.Find(ctx, "maya chen")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Handle).To(Equal(created.Handle))
		})

		It("finds by given name", func() {
			created, err := store.Create(ctx, validInput)
			Expect(err).NotTo(HaveOccurred())

			got, err := store.Find(ctx, "Maya")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Handle).To(Equal(created.Handle))
		})

		It("returns NotFoundError for unknown names", func() {
			_, err := store.Find(ctx, "Nobody")

			var notFound persona.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("treats a quoted statement fragment as a plain name", func() {
			_, err := store.Create(ctx, validInput)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Find(ctx, "' OR '1'='1")

			var notFound persona.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})
})
