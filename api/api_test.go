package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/chatlog"
	"github.com/engramchat/engram/pkg/identity"
	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/llm/provider"
	"github.com/engramchat/engram/pkg/memstore/graph"
	"github.com/engramchat/engram/pkg/memstore/inmemory"
	"github.com/engramchat/engram/pkg/orchestrator"
	"github.com/engramchat/engram/pkg/persona"
	"github.com/engramchat/engram/pkg/session"
	"github.com/engramchat/engram/pkg/testutil"
)

// drippingChatter streams fragments until its context is cancelled, so tests
// can observe whether an abandoned stream stops generation.
type drippingChatter struct {
	cancelled chan struct{}
}

func (d *drippingChatter) Name() string { return "dripping" }

func (d *drippingChatter) Chat(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("blocking chat not supported")
}

func (d *drippingChatter) ChatStream(ctx context.Context, _ *llm.ChatRequest, handler provider.StreamHandler) (*llm.ChatResponse, error) {
	for {
		select {
		case <-ctx.Done():
			close(d.cancelled)
			return nil, ctx.Err()
		default:
		}

		if err := handler(llm.StreamChunk{Message: llm.NewMessage(llm.RoleAssistant, "word ")}); err != nil {
			return nil, err
		}
		time.Sleep(time.Millisecond)
	}
}

var _ = Describe("Server", func() {
	var (
		store    *graph.Store
		chatter  *testutil.ScriptedChatter
		recorder *chatlog.Recorder
		server   *Server
	)

	validPersona := persona.Input{
		GivenName:  "Maya",
		Surname:    "Chen",
		Age:        34,
		Profession: "marine biologist",
	}

	postJSON := func(path string, payload any) *http.Request {
		body, err := json.Marshal(payload)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	decode := func(resp *http.Response, out any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, out)).To(Succeed())
	}

	BeforeEach(func() {
		logger := zap.NewNop()

		var err error
		store, err = graph.NewStore(graph.Config{DBPath: ":memory:"}, nil, nil, logger)
		Expect(err).NotTo(HaveOccurred())

		personas, err := persona.NewStore(context.Background(), store, logger)
		Expect(err).NotTo(HaveOccurred())

		resolver, err := identity.NewResolver(store, logger)
		Expect(err).NotTo(HaveOccurred())

		recorder, err = chatlog.NewRecorder(&chatlog.Config{
			Store:  store,
			Logger: logger,
		})
		Expect(err).NotTo(HaveOccurred())

		chatter = &testutil.ScriptedChatter{Fragments: []string{"Hello ", "Sam!"}}

		orch := orchestrator.New(orchestrator.Config{
			Model:      "scripted",
			BasePrompt: "You are a helpful assistant.",
		}, store, chatter, recorder, logger)

		server = NewServer(Config{ListenAddr: ":0"}, resolver, personas, orch, logger)
	})

	AfterEach(func() {
		recorder.Close()
		store.Close()
	})

	Describe("GET /ping", func() {
		It("responds pong", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /chat", func() {
		chatPayload := func() ChatRequest {
			return ChatRequest{
				UserName: "Sam",
				Messages: []llm.Message{llm.NewMessage(llm.RoleUser, "hi there")},
			}
		}

		It("returns the full reply", func() {
			resp, err := server.app.Test(postJSON("/chat", chatPayload()))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chatResp ChatResponse
			decode(resp, &chatResp)
			Expect(chatResp.Message.Content).To(Equal("Hello Sam!"))
			Expect(chatResp.Done).To(BeTrue())
		})

		It("rejects an empty user name", func() {
			payload := chatPayload()
			payload.UserName = " "

			resp, err := server.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("completes a turn without a user message", func() {
			payload := chatPayload()
			payload.Messages = nil

			resp, err := server.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chatResp ChatResponse
			decode(resp, &chatResp)
			Expect(chatResp.Message.Content).To(Equal("Hello Sam!"))
		})

		It("404s on an unknown persona", func() {
			payload := chatPayload()
			payload.Persona = "Nobody"

			resp, err := server.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("answers as a named persona", func() {
			created, err := server.personas.Create(context.Background(), validPersona)
			Expect(err).NotTo(HaveOccurred())

			payload := chatPayload()
			payload.Persona = created.GivenName

			resp, err := server.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chatResp ChatResponse
			decode(resp, &chatResp)
			Expect(chatResp.Persona).To(Equal("Maya Chen"))
		})

		It("streams NDJSON chunks ending with a done marker", func() {
			payload := chatPayload()
			payload.Stream = true

			resp, err := server.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("ndjson"))

			var (
				content string
				done    bool
			)
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				var chunk ChatResponse
				Expect(json.Unmarshal(scanner.Bytes(), &chunk)).To(Succeed())
				content += chunk.Message.Content
				done = chunk.Done
			}
			Expect(scanner.Err()).NotTo(HaveOccurred())

			Expect(content).To(Equal("Hello Sam!"))
			Expect(done).To(BeTrue())
		})

		It("502s when generation fails", func() {
			chatter.Err = context.DeadlineExceeded

			resp, err := server.app.Test(postJSON("/chat", chatPayload()))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("personas endpoints", func() {
		It("creates, lists, and gets personas", func() {
			resp, err := server.app.Test(postJSON("/personas", validPersona))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var created persona.Persona
			decode(resp, &created)
			Expect(created.FullName).To(Equal("Maya Chen"))

			resp, err = server.app.Test(httptest.NewRequest(http.MethodGet, "/personas", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var listing struct {
				Count    int               `json:"count"`
				Personas []persona.Persona `json:"personas"`
			}
			decode(resp, &listing)
			Expect(listing.Count).To(Equal(1))

			resp, err = server.app.Test(httptest.NewRequest(http.MethodGet, "/personas/"+created.Handle, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("422s invalid input, echoing the submitted values", func() {
			resp, err := server.app.Test(postJSON("/personas", persona.Input{
				GivenName: "Maya",
				Age:       -1,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			var invalid InvalidPersonaResponse
			decode(resp, &invalid)
			Expect(invalid.Reasons).NotTo(BeEmpty())
			Expect(invalid.Input.GivenName).To(Equal("Maya"))
		})

		It("404s an unknown handle", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/personas/unknown", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("without a persona store", func() {
		var bare *Server

		BeforeEach(func() {
			// The inmemory store has no structured-query path, so the stack
			// builder leaves the persona store nil.
			bare = NewServer(Config{ListenAddr: ":0"}, server.resolver, nil, server.orchestrator, zap.NewNop())
		})

		It("503s the persona endpoints instead of panicking", func() {
			for _, req := range []*http.Request{
				httptest.NewRequest(http.MethodGet, "/personas", nil),
				postJSON("/personas", validPersona),
				httptest.NewRequest(http.MethodGet, "/personas/some-handle", nil),
			} {
				resp, err := bare.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))

				var errResp llm.ErrorResponse
				decode(resp, &errResp)
				Expect(errResp.Error).To(ContainSubstring("graph store"))
			}
		})

		It("503s a chat turn that names a persona", func() {
			payload := ChatRequest{
				UserName: "Sam",
				Persona:  "Maya",
				Messages: []llm.Message{llm.NewMessage(llm.RoleUser, "hi")},
			}

			resp, err := bare.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("still serves persona-free chat turns", func() {
			payload := ChatRequest{
				UserName: "Sam",
				Messages: []llm.Message{llm.NewMessage(llm.RoleUser, "hi")},
			}

			resp, err := bare.app.Test(postJSON("/chat", payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("mid-stream disconnect", func() {
		It("cancels generation and records no exchange", func() {
			memStore := inmemory.NewStore()
			rec, err := chatlog.NewRecorder(&chatlog.Config{
				Store:  memStore,
				Logger: zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())

			dripping := &drippingChatter{cancelled: make(chan struct{})}
			orch := orchestrator.New(orchestrator.Config{Model: "dripping"}, memStore, dripping, rec, zap.NewNop())
			srv := NewServer(Config{ListenAddr: ":0"}, server.resolver, nil, orch, zap.NewNop())

			turn := orchestrator.Turn{
				Session:  session.NewSession("Sam", "id-sam"),
				Messages: []llm.Message{llm.NewMessage(llm.RoleUser, "hi")},
			}

			pr, pw := io.Pipe()
			writerDone := make(chan struct{})
			go func() {
				defer close(writerDone)
				srv.writeTurnChunks(pw, turn)
			}()

			// Read one chunk to confirm the stream started, then go away.
			_, err = bufio.NewReader(pr).ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			pr.Close()

			Eventually(dripping.cancelled).Should(BeClosed())
			Eventually(writerDone).Should(BeClosed())

			// Drain the recorder; the abandoned turn must not have been queued.
			rec.Close()
			Expect(memStore.Count()).To(BeZero())
		})
	})
})
