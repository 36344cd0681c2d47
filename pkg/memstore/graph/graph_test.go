package graph_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/memstore/graph"
	"github.com/engramchat/engram/pkg/testutil"
	"github.com/engramchat/engram/pkg/vector/chromem"
)

var _ = Describe("Store", func() {
	var (
		ctx      context.Context
		embedder *testutil.MockEmbedder
		vectors  *chromem.ChromemDriver
		store    *graph.Store
	)

	newStore := func() *graph.Store {
		s, err := graph.NewStore(graph.Config{DBPath: ":memory:"}, vectors, embedder, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &testutil.MockEmbedder{
			Embeddings: map[string][]float32{
				"Sam: my favorite color is teal": {1, 0, 0},
				"favorite color":                 {0.72, 0.69, 0},
				"Riley likes hiking.":            {0, 1, 0},
			},
		}

		var err error
		vectors, err = chromem.NewChromemDriver(chromem.Config{}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		store = newStore()
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("AddEpisode", func() {
		It("rejects an empty body", func() {
			err := store.AddEpisode(ctx, memstore.Episode{})
			Expect(err).To(HaveOccurred())
		})

		It("derives entities from the body", func() {
			Expect(store.AddEpisode(ctx, memstore.Episode{
				Body: "Sam moved to Lisbon last spring.",
			})).To(Succeed())

			sam, err := store.FindEntity(ctx, "Sam")
			Expect(err).NotTo(HaveOccurred())
			Expect(sam.Name).To(Equal("Sam"))

			lisbon, err := store.FindEntity(ctx, "Lisbon")
			Expect(err).NotTo(HaveOccurred())
			Expect(lisbon.UUID).NotTo(Equal(sam.UUID))
		})

		It("reuses entities across episodes case-insensitively", func() {
			Expect(store.AddEpisode(ctx, memstore.Episode{
				Body: "Sam moved to Lisbon.",
			})).To(Succeed())
			Expect(store.AddEpisode(ctx, memstore.Episode{
				Body: "sam: I got a cat",
			})).To(Succeed())

			entity, err := store.FindEntity(ctx, "SAM")
			Expect(err).NotTo(HaveOccurred())
			Expect(entity.UUID).NotTo(BeEmpty())
		})

		It("keeps the episode when embedding fails", func() {
			embedder.FailOn = "unembeddable"

			Expect(store.AddEpisode(ctx, memstore.Episode{
				Body: "Sam said something unembeddable.",
			})).To(Succeed())

			_, err := store.FindEntity(ctx, "Sam")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(store.AddEpisode(ctx, memstore.Episode{
				Body: "Sam: my favorite color is teal",
			})).To(Succeed())
			Expect(store.AddEpisode(ctx, memstore.Episode{
				Body: "Riley likes hiking.",
			})).To(Succeed())
		})

		It("returns the closest episodes first", func() {
			facts, err := store.Search(ctx, "favorite color")
			Expect(err).NotTo(HaveOccurred())

			Expect(facts).NotTo(BeEmpty())
			Expect(facts[0].Content).To(Equal("Sam: my favorite color is teal"))
			Expect(facts[0].Score).To(BeNumerically(">", 0))
		})

		It("honors the limit option", func() {
			facts, err := store.Search(ctx, "favorite color", memstore.WithLimit(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(1))
		})

		It("boosts episodes mentioning the center entity", func() {
			riley, err := store.FindEntity(ctx, "Riley")
			Expect(err).NotTo(HaveOccurred())

			uncentered, err := store.Search(ctx, "favorite color")
			Expect(err).NotTo(HaveOccurred())
			Expect(uncentered[0].Content).To(Equal("Sam: my favorite color is teal"))

			centered, err := store.Search(ctx, "favorite color", memstore.WithCenter(riley.UUID))
			Expect(err).NotTo(HaveOccurred())
			Expect(centered[0].Content).To(Equal("Riley likes hiking."))
		})

		It("fails when the query cannot be embedded", func() {
			embedder.FailOn = "broken"

			_, err := store.Search(ctx, "broken query")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("without semantic search", func() {
		It("persists and searches empty when vectors and embedder are nil", func() {
			bare, err := graph.NewStore(graph.Config{DBPath: ":memory:"}, nil, nil, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			defer bare.Close()

			Expect(bare.AddEpisode(ctx, memstore.Episode{
				Body: "Sam moved to Lisbon.",
			})).To(Succeed())

			facts, err := bare.Search(ctx, "anything")
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(BeEmpty())
		})
	})

	Describe("FindEntity", func() {
		It("returns NotFoundError for unknown names", func() {
			_, err := store.FindEntity(ctx, "Nobody")

			var notFound memstore.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("Query and Exec", func() {
		It("runs parameterized statements", func() {
			Expect(store.Exec(ctx,
				`CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY, body TEXT)`,
			)).To(Succeed())
			Expect(store.Exec(ctx,
				`INSERT INTO notes(body) VALUES (?)`, "hello",
			)).To(Succeed())

			rows, err := store.Query(ctx, `SELECT body FROM notes WHERE body = ?`, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})
	})
})
