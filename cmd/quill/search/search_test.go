package searchcmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apisearch "github.com/papercomputeco/quill/api/search"
	searchcmder "github.com/papercomputeco/quill/cmd/quill/search"
)

var _ = Describe("SearchAPI", func() {
	var (
		server   *httptest.Server
		lastPath string
		lastQ    string
		lastTopK string
		status   int
		body     any
	)

	BeforeEach(func() {
		status = http.StatusOK
		body = apisearch.Output{
			Query: "goroutines",
			Results: []apisearch.Result{{
				ID:          "a1",
				Title:       "Concurrency in Go",
				URL:         "https://example.com/a1",
				Author:      "gopher",
				PublishedAt: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
				Distance:    0.125,
				Sections:    []apisearch.Section{{Index: 2, Title: "Select", Distance: 0.125}},
			}},
			Count: 1,
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.URL.Path
			lastQ = r.URL.Query().Get("query")
			lastTopK = r.URL.Query().Get("top_k")
			w.WriteHeader(status)
			Expect(json.NewEncoder(w).Encode(body)).To(Succeed())
		}))
		DeferCleanup(server.Close)
	})

	It("calls the search endpoint and parses the output", func() {
		out, err := searchcmder.SearchAPI(context.Background(), server.URL, "goroutines", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastPath).To(Equal("/v1/search"))
		Expect(lastQ).To(Equal("goroutines"))
		Expect(lastTopK).To(Equal("3"))
		Expect(out.Count).To(Equal(1))
		Expect(out.Results[0].Sections).To(HaveLen(1))
	})

	It("reports non-200 responses", func() {
		status = http.StatusBadRequest
		body = map[string]string{"error": "query parameter is required"}

		_, err := searchcmder.SearchAPI(context.Background(), server.URL, "", 3)
		Expect(err).To(MatchError(ContainSubstring("HTTP 400")))
		Expect(err).To(MatchError(ContainSubstring("query parameter is required")))
	})

	It("reports unreachable servers", func() {
		_, err := searchcmder.SearchAPI(context.Background(), "http://127.0.0.1:1", "go", 3)
		Expect(err).To(MatchError(ContainSubstring("failed to connect")))
	})
})

var _ = Describe("PrintResults", func() {
	It("prints titles, urls and sections", func() {
		var buf bytes.Buffer
		searchcmder.PrintResults(&buf, &apisearch.Output{
			Query: "go",
			Results: []apisearch.Result{{
				Title:    "Concurrency in Go",
				URL:      "https://example.com/a1",
				Distance: 0.5,
				Sections: []apisearch.Section{{Index: 1, Title: "Channels", Distance: 0.5}},
			}},
			Count: 1,
		}, false)

		Expect(buf.String()).To(ContainSubstring("#1"))
		Expect(buf.String()).To(ContainSubstring("Concurrency in Go"))
		Expect(buf.String()).To(ContainSubstring("https://example.com/a1"))
		Expect(buf.String()).To(ContainSubstring("Channels"))
		Expect(buf.String()).To(ContainSubstring("distance: 0.5000"))
	})

	It("flags fallback results", func() {
		var buf bytes.Buffer
		searchcmder.PrintResults(&buf, &apisearch.Output{
			Query:    "go",
			Results:  []apisearch.Result{{Title: "Latest", URL: "https://example.com/new"}},
			Count:    1,
			Fallback: true,
		}, false)

		Expect(buf.String()).To(ContainSubstring("most recent articles"))
		Expect(buf.String()).To(ContainSubstring("recent"))
	})

	It("reports an empty result set", func() {
		var buf bytes.Buffer
		searchcmder.PrintResults(&buf, &apisearch.Output{Query: "go"}, false)
		Expect(buf.String()).To(Equal("No results found.\n"))
	})
})
