package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/quill/pkg/ingest"
	"github.com/papercomputeco/quill/pkg/logger"
	"github.com/papercomputeco/quill/pkg/rag"
	"github.com/papercomputeco/quill/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/quill/pkg/utils/test"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []ingest.Job
	full bool
}

func (q *fakeQueue) Enqueue(job ingest.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) Stats() ingest.Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ingest.Stats{Queued: int64(len(q.jobs))}
}

// apiFixture is a server over in-memory storage, a mock vector index and a
// mock embedder.
type apiFixture struct {
	server   *Server
	store    *inmemory.Driver
	index    *testutils.MockVectorDriver
	embedder *testutils.MockEmbedder
	pipeline *rag.Pipeline
}

func newAPIFixture(queue Queue) *apiFixture {
	f := &apiFixture{
		store:    inmemory.NewDriver(),
		index:    testutils.NewMockVectorDriver(),
		embedder: testutils.NewMockEmbedder(),
	}

	var err error
	f.pipeline, err = rag.NewPipeline(rag.Config{
		Store:    f.store,
		Index:    f.index,
		Embedder: f.embedder,
	})
	Expect(err).NotTo(HaveOccurred())

	cfg := Config{ListenAddr: ":0", Pipeline: f.pipeline}
	if queue != nil {
		cfg.Queue = queue
	}
	f.server, err = NewServer(cfg, f.store, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return f
}

func (f *apiFixture) do(method, target string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, raw
}

var _ = Describe("NewServer", func() {
	It("requires a storage driver", func() {
		_, err := NewServer(Config{Pipeline: &rag.Pipeline{}}, nil, logger.Nop())
		Expect(err).To(MatchError("storage driver is required"))
	})

	It("requires a pipeline", func() {
		_, err := NewServer(Config{}, inmemory.NewDriver(), logger.Nop())
		Expect(err).To(MatchError("pipeline is required"))
	})

	It("requires a logger", func() {
		_, err := NewServer(Config{Pipeline: &rag.Pipeline{}}, inmemory.NewDriver(), nil)
		Expect(err).To(MatchError("logger is required"))
	})

	It("mounts the MCP endpoint when enabled", func() {
		f := newAPIFixture(nil)
		s, err := NewServer(Config{Pipeline: f.pipeline, MCP: true}, f.store, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/mcp", nil), -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).NotTo(Equal(http.StatusNotFound))
	})
})

var _ = Describe("Article endpoints", func() {
	var (
		ctx context.Context
		f   *apiFixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newAPIFixture(nil)
	})

	Describe("GET /ping", func() {
		It("responds with pong", func() {
			status, body := f.do(http.MethodGet, "/ping", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal(`"pong"`))
		})
	})

	Describe("POST /v1/articles", func() {
		It("stores and synchronously indexes an article", func() {
			status, body := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 2))
			Expect(status).To(Equal(http.StatusCreated))

			var resp IndexResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.ID).To(Equal("a1"))
			Expect(resp.Queued).To(BeFalse())
			Expect(resp.Result).NotTo(BeNil())
			Expect(resp.Result.Status).To(Equal(rag.StatusIndexed))
			Expect(resp.Error).To(BeEmpty())

			stored, err := f.store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Saved).To(BeTrue())

			ids, err := f.index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ContainElement("a1"))
		})

		It("stores without indexing when index=false", func() {
			status, _ := f.do(http.MethodPost, "/v1/articles?index=false", testutils.NewArticle("a1", 2))
			Expect(status).To(Equal(http.StatusCreated))

			stored, err := f.store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Saved).To(BeFalse())
			Expect(f.embedder.Calls()).To(BeEmpty())
		})

		It("rejects an article without a url", func() {
			a := testutils.NewArticle("a1", 2)
			a.URL = ""

			status, body := f.do(http.MethodPost, "/v1/articles", a)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("url is required"))
		})

		It("rejects a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/articles", bytes.NewBufferString("{"))
			req.Header.Set("Content-Type", "application/json")
			resp, err := f.server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports an embedding failure without failing the request", func() {
			f.embedder.FailAll = true

			status, body := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 2))
			Expect(status).To(Equal(http.StatusCreated))

			var resp IndexResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Result.Status).To(Equal(rag.StatusNotEmbedded))
			Expect(resp.Error).To(ContainSubstring("mock embedding failure"))

			_, err := f.store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("GET /v1/articles", func() {
		BeforeEach(func() {
			Expect(f.store.Put(ctx, testutils.NewArticle("old", 1))).To(Succeed())
			Expect(f.store.Put(ctx, testutils.NewArticle("new", 9))).To(Succeed())
		})

		It("lists recent articles without bodies", func() {
			status, body := f.do(http.MethodGet, "/v1/articles", nil)
			Expect(status).To(Equal(http.StatusOK))

			var resp ListResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(2))
			Expect(resp.Articles[0].ID).To(Equal("new"))
			Expect(resp.Articles[0].Body).To(BeEmpty())
		})

		It("honors the limit", func() {
			status, body := f.do(http.MethodGet, "/v1/articles?limit=1", nil)
			Expect(status).To(Equal(http.StatusOK))

			var resp ListResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(1))
		})

		It("rejects an invalid limit", func() {
			status, _ := f.do(http.MethodGet, "/v1/articles?limit=zero", nil)
			Expect(status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /v1/articles/:id", func() {
		It("returns the stored article", func() {
			Expect(f.store.Put(ctx, testutils.NewArticle("a1", 1))).To(Succeed())

			status, body := f.do(http.MethodGet, "/v1/articles/a1", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"body":"Body of a1"`))
		})

		It("returns 404 for a missing article", func() {
			status, body := f.do(http.MethodGet, "/v1/articles/missing", nil)
			Expect(status).To(Equal(http.StatusNotFound))

			var resp ErrorResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Error).To(ContainSubstring("missing"))
		})
	})

	Describe("POST /v1/articles/:id/index", func() {
		It("returns 404 for a missing article", func() {
			status, _ := f.do(http.MethodPost, "/v1/articles/missing/index", nil)
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("reindexes a stored article", func() {
			Expect(f.store.Put(ctx, testutils.NewArticle("a1", 1))).To(Succeed())

			status, body := f.do(http.MethodPost, "/v1/articles/a1/index", nil)
			Expect(status).To(Equal(http.StatusOK))

			var resp IndexResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Result.Records).To(Equal(1))
		})
	})

	Describe("DELETE /v1/articles/:id/index", func() {
		It("removes index records and keeps the article", func() {
			status, _ := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 1))
			Expect(status).To(Equal(http.StatusCreated))

			status, body := f.do(http.MethodDelete, "/v1/articles/a1/index", nil)
			Expect(status).To(Equal(http.StatusOK))

			var resp DeleteResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Records).To(Equal(1))

			ids, err := f.index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())

			_, err = f.store.Get(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("DELETE /v1/articles/:id", func() {
		It("removes the article and its records", func() {
			status, _ := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 1))
			Expect(status).To(Equal(http.StatusCreated))

			status, _ = f.do(http.MethodDelete, "/v1/articles/a1", nil)
			Expect(status).To(Equal(http.StatusOK))

			n, err := f.store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			ids, err := f.index.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})

		It("returns 404 for a missing article", func() {
			status, _ := f.do(http.MethodDelete, "/v1/articles/missing", nil)
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /v1/reconcile", func() {
		It("drops records of articles removed from the store", func() {
			status, _ := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 1))
			Expect(status).To(Equal(http.StatusCreated))
			Expect(f.store.Delete(ctx, "a1")).To(Succeed())

			status, body := f.do(http.MethodPost, "/v1/reconcile", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"removed": 1}`))
		})
	})

	Describe("GET /v1/stats", func() {
		It("reports index and store counts", func() {
			status, _ := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 1))
			Expect(status).To(Equal(http.StatusCreated))

			status, body := f.do(http.MethodGet, "/v1/stats", nil)
			Expect(status).To(Equal(http.StatusOK))

			var resp StatsResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Stats).NotTo(BeNil())
			Expect(resp.Vectors).To(Equal(1))
			Expect(resp.Articles).To(Equal(1))
			Expect(resp.Model).To(Equal("mock-embed"))
			Expect(resp.Ingest).To(BeNil())
		})
	})
})

var _ = Describe("Queued indexing", func() {
	var (
		ctx   context.Context
		queue *fakeQueue
		f     *apiFixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		queue = &fakeQueue{}
		f = newAPIFixture(queue)
	})

	It("enqueues new articles", func() {
		status, body := f.do(http.MethodPost, "/v1/articles", testutils.NewArticle("a1", 1))
		Expect(status).To(Equal(http.StatusAccepted))

		var resp IndexResponse
		Expect(json.Unmarshal(body, &resp)).To(Succeed())
		Expect(resp.Queued).To(BeTrue())
		Expect(resp.Result).To(BeNil())
		Expect(queue.jobs).To(Equal([]ingest.Job{{ArticleID: "a1"}}))
		Expect(f.embedder.Calls()).To(BeEmpty())
	})

	It("indexes synchronously with wait=true", func() {
		Expect(f.store.Put(ctx, testutils.NewArticle("a1", 1))).To(Succeed())

		status, body := f.do(http.MethodPost, "/v1/articles/a1/index?wait=true", nil)
		Expect(status).To(Equal(http.StatusOK))

		var resp IndexResponse
		Expect(json.Unmarshal(body, &resp)).To(Succeed())
		Expect(resp.Result.Status).To(Equal(rag.StatusIndexed))
		Expect(queue.jobs).To(BeEmpty())
	})

	It("returns 503 when the queue is full", func() {
		queue.full = true
		Expect(f.store.Put(ctx, testutils.NewArticle("a1", 1))).To(Succeed())

		status, _ := f.do(http.MethodPost, "/v1/articles/a1/index", nil)
		Expect(status).To(Equal(http.StatusServiceUnavailable))
	})

	It("includes queue counters in stats", func() {
		Expect(queue.Enqueue(ingest.Job{ArticleID: "x"})).To(BeTrue())

		status, body := f.do(http.MethodGet, "/v1/stats", nil)
		Expect(status).To(Equal(http.StatusOK))

		var resp StatsResponse
		Expect(json.Unmarshal(body, &resp)).To(Succeed())
		Expect(resp.Ingest).NotTo(BeNil())
		Expect(resp.Ingest.Queued).To(Equal(int64(1)))
	})
})
