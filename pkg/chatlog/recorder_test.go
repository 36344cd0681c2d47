package chatlog_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/chatlog"
	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/memstore/inmemory"
	"github.com/engramchat/engram/pkg/testutil"
)

// blockingStore blocks AddEpisode until released, pinning the workers so the
// queue can be filled.
type blockingStore struct {
	*inmemory.Store
	release chan struct{}
}

func (s *blockingStore) AddEpisode(ctx context.Context, ep memstore.Episode) error {
	<-s.release
	return s.Store.AddEpisode(ctx, ep)
}

var _ = Describe("Recorder", func() {
	var (
		store     *inmemory.Store
		publisher *testutil.CapturePublisher
	)

	exchange := chatlog.Exchange{
		UserName:         "Sam",
		IdentityHandle:   "id-1",
		UserMessage:      "my favorite color is teal",
		AssistantMessage: "Teal is a great choice!",
	}

	BeforeEach(func() {
		store = inmemory.NewStore()
		publisher = &testutil.CapturePublisher{}
	})

	It("persists an enqueued exchange and publishes the event", func() {
		recorder, err := chatlog.NewRecorder(&chatlog.Config{
			Store:     store,
			Publisher: publisher,
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(recorder.Enqueue(exchange)).To(BeTrue())
		recorder.Close()

		episodes := store.Episodes()
		Expect(episodes).To(HaveLen(1))
		Expect(episodes[0].Name).To(Equal("Chatbot Response"))
		Expect(episodes[0].Body).To(Equal("Sam: my favorite color is teal\nAI friend: Teal is a great choice!"))
		Expect(episodes[0].Source).To(Equal(memstore.SourceMessage))

		events := publisher.Events()
		Expect(events).To(HaveLen(1))
		Expect(events[0].Exchange.IdentityHandle).To(Equal("id-1"))
		Expect(events[0].Exchange.UserMessage).To(Equal("my favorite color is teal"))
		Expect(events[0].EventID).NotTo(BeEmpty())
	})

	It("labels the assistant with the persona name when one is set", func() {
		ex := exchange
		ex.PersonaName = "Maya Chen"

		recorder, err := chatlog.NewRecorder(&chatlog.Config{
			Store:  store,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(recorder.RecordSync(context.Background(), ex)).To(Succeed())
		recorder.Close()

		episodes := store.Episodes()
		Expect(episodes).To(HaveLen(1))
		Expect(episodes[0].Body).To(ContainSubstring("Maya Chen: Teal is a great choice!"))
	})

	It("reports a full queue so the caller can fall back to RecordSync", func() {
		blocked := &blockingStore{Store: store, release: make(chan struct{})}

		recorder, err := chatlog.NewRecorder(&chatlog.Config{
			Store:      blocked,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		// First exchange is picked up by the pinned worker; give it a
		// moment to leave the queue, then fill the single slot.
		Expect(recorder.Enqueue(exchange)).To(BeTrue())
		Eventually(func() bool {
			return recorder.Enqueue(exchange)
		}).Should(BeTrue())

		Expect(recorder.Enqueue(exchange)).To(BeFalse())

		close(blocked.release)
		recorder.Close()

		Expect(store.Count()).To(Equal(2))
	})

	It("stamps the exchange time when unset", func() {
		recorder, err := chatlog.NewRecorder(&chatlog.Config{
			Store:     store,
			Publisher: publisher,
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(recorder.RecordSync(context.Background(), exchange)).To(Succeed())
		recorder.Close()

		events := publisher.Events()
		Expect(events).To(HaveLen(1))
		Expect(events[0].Exchange.At).To(BeTemporally("~", time.Now(), time.Minute))
	})

	It("still persists when publishing fails", func() {
		publisher.Err = context.DeadlineExceeded

		recorder, err := chatlog.NewRecorder(&chatlog.Config{
			Store:     store,
			Publisher: publisher,
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(recorder.RecordSync(context.Background(), exchange)).To(Succeed())
		recorder.Close()

		Expect(store.Count()).To(Equal(1))
	})

	It("requires a store", func() {
		_, err := chatlog.NewRecorder(&chatlog.Config{Logger: zap.NewNop()})
		Expect(err).To(HaveOccurred())
	})
})
