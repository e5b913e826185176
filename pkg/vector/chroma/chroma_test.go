package chroma_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	quilllogger "github.com/papercomputeco/quill/pkg/logger"
	"github.com/papercomputeco/quill/pkg/vector"
	"github.com/papercomputeco/quill/pkg/vector/chroma"
)

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// fakeChroma serves the subset of the Chroma v2 API the driver uses.
type fakeChroma struct {
	mu        sync.Mutex
	space     any
	ids       []string
	metadatas map[string]map[string]any
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{metadatas: map[string]map[string]any{}}
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, collectionsPath)

	switch {
	case r.Method == http.MethodGet && path == "/quill":
		http.Error(w, "not found", http.StatusNotFound)

	case r.Method == http.MethodPost && path == "":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if md, ok := body["metadata"].(map[string]any); ok {
			f.space = md["hnsw:space"]
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cid", "name": "quill"})

	case path == "/cid/upsert":
		var body struct {
			IDs       []string         `json:"ids"`
			Metadatas []map[string]any `json:"metadatas"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i, id := range body.IDs {
			if _, ok := f.metadatas[id]; !ok {
				f.ids = append(f.ids, id)
			}
			f.metadatas[id] = body.Metadatas[i]
		}
		_, _ = w.Write([]byte("{}"))

	case path == "/cid/query":
		metas := make([]map[string]any, len(f.ids))
		dists := make([]float32, len(f.ids))
		for i, id := range f.ids {
			metas[i] = f.metadatas[id]
			dists[i] = float32(i) * 0.1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{f.ids},
			"distances": [][]float32{dists},
			"metadatas": [][]map[string]any{metas},
		})

	case path == "/cid/get":
		var body struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		end := min(body.Offset+body.Limit, len(f.ids))
		if body.Limit == 0 {
			end = len(f.ids)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ids": f.ids[min(body.Offset, end):end]})

	case path == "/cid/count":
		_ = json.NewEncoder(w).Encode(len(f.ids))

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusBadRequest)
	}
}

var _ = Describe("Driver", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = quilllogger.Nop()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})

		It("should create the collection in the cosine space", func() {
			fake := newFakeChroma()
			server := httptest.NewServer(fake)
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{URL: server.URL}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.space).To(Equal("cosine"))
		})

		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			// Each attempt issues a GET for the collection and a POST to
			// create it. Fail the first two attempts.
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempt := attempts.Add(1)
				if attempt <= 4 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{
					"id":   "test-collection-id",
					"name": "quill",
				})
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(attempts.Load()).To(BeNumerically(">=", int32(5)))
		})

		It("should return an error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, logger)
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
		})
	})

	Describe("records", func() {
		var (
			ctx    context.Context
			server *httptest.Server
			driver *chroma.Driver
		)

		BeforeEach(func() {
			ctx = context.Background()
			server = httptest.NewServer(newFakeChroma())

			var err error
			driver, err = chroma.NewDriver(chroma.Config{URL: server.URL}, logger)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			server.Close()
		})

		It("should upsert with metadata and read it back from queries", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "a", Embedding: []float32{1, 0}, Metadata: vector.Metadata{Title: "A", URL: "u"}},
				{ID: "b_section_0", Embedding: []float32{0, 1}, Metadata: vector.Metadata{
					Title: "B", IsSection: true, ParentID: "b", SectionTitle: "Intro",
				}},
			})).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[0].Metadata.Title).To(Equal("A"))
			Expect(results[1].Metadata.IsSection).To(BeTrue())
			Expect(results[1].Metadata.ParentID).To(Equal("b"))
			Expect(results[1].Distance).To(BeNumerically("~", 0.1, 1e-6))
		})

		It("should list ids and count records", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "a", Embedding: []float32{1}},
				{ID: "b", Embedding: []float32{1}},
			})).To(Succeed())

			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("a", "b"))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})
	})
})
