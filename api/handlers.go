package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/ingest"
	"github.com/papercomputeco/quill/pkg/rag"
	"github.com/papercomputeco/quill/pkg/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// StatsResponse combines pipeline and ingestion pool counters.
type StatsResponse struct {
	*rag.Stats
	Ingest *ingest.Stats `json:"ingest,omitempty"`
}

// IndexResponse reports the outcome of an indexing request. Result is set
// when indexing ran synchronously; Queued when the job went to the pool.
type IndexResponse struct {
	ID     string            `json:"id"`
	Queued bool              `json:"queued,omitempty"`
	Result *rag.IngestResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// ListResponse is a page of recent articles.
type ListResponse struct {
	Count    int                `json:"count"`
	Articles []*article.Article `json:"articles"`
}

// DeleteResponse reports how many index records an article removal dropped.
type DeleteResponse struct {
	ID      string `json:"id"`
	Records int    `json:"records"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns index, store, cache and ingestion counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.config.Pipeline.Stats(c.Context())
	if err != nil {
		s.logger.Error("failed to collect stats", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to collect stats")
	}

	resp := StatsResponse{Stats: stats}
	if s.config.Queue != nil {
		qs := s.config.Queue.Stats()
		resp.Ingest = &qs
	}
	return c.JSON(resp)
}

// handleListArticles returns the most recent articles without their bodies.
// Query parameters:
//   - limit (optional, default 20): number of articles to return
func (s *Server) handleListArticles(c *fiber.Ctx) error {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return errorJSON(c, fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}

	articles, err := s.store.Recent(c.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list articles", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to list articles")
	}

	for _, a := range articles {
		a.Body = ""
	}
	return c.JSON(ListResponse{Count: len(articles), Articles: articles})
}

// handleGetArticle returns a single article by id.
func (s *Server) handleGetArticle(c *fiber.Ctx) error {
	a, err := s.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(a)
}

// handlePutArticle stores an article and, unless index=false is given,
// indexes it.
func (s *Server) handlePutArticle(c *fiber.Ctx) error {
	var a article.Article
	if err := c.BodyParser(&a); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid article body")
	}
	a.Saved = false
	if err := a.Validate(); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	if err := s.store.Put(c.Context(), &a); err != nil {
		s.logger.Error("failed to store article", "article_id", a.ID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to store article")
	}

	if c.QueryBool("index", true) {
		return s.index(c, a.ID, fiber.StatusCreated)
	}
	return c.Status(fiber.StatusCreated).JSON(IndexResponse{ID: a.ID})
}

// handleIndexArticle (re)indexes a stored article. With wait=true, or when no
// queue is configured, it runs synchronously and returns the ingest result.
func (s *Server) handleIndexArticle(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.Get(c.Context(), id); err != nil {
		return s.storeError(c, err)
	}
	return s.index(c, id, fiber.StatusOK)
}

func (s *Server) index(c *fiber.Ctx, id string, syncStatus int) error {
	if s.config.Queue != nil && !c.QueryBool("wait", false) {
		if !s.config.Queue.Enqueue(ingest.Job{ArticleID: id}) {
			return errorJSON(c, fiber.StatusServiceUnavailable, "indexing queue is full")
		}
		return c.Status(fiber.StatusAccepted).JSON(IndexResponse{ID: id, Queued: true})
	}

	res, err := s.config.Pipeline.AddDocument(c.Context(), id)
	if err != nil {
		return s.storeError(c, err)
	}

	resp := IndexResponse{ID: id, Result: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return c.Status(syncStatus).JSON(resp)
}

// handleUnindexArticle removes an article's records from the vector index
// and keeps the article itself.
func (s *Server) handleUnindexArticle(c *fiber.Ctx) error {
	id := c.Params("id")
	n, err := s.config.Pipeline.DeleteDocument(c.Context(), id)
	if err != nil {
		s.logger.Error("failed to remove article from index", "article_id", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to remove article from index")
	}
	return c.JSON(DeleteResponse{ID: id, Records: n})
}

// handleDeleteArticle removes an article from the index and the store.
func (s *Server) handleDeleteArticle(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.Get(c.Context(), id); err != nil {
		return s.storeError(c, err)
	}

	n, err := s.config.Pipeline.DeleteDocument(c.Context(), id)
	if err != nil {
		s.logger.Error("failed to remove article from index", "article_id", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to remove article from index")
	}

	if err := s.store.Delete(c.Context(), id); err != nil {
		s.logger.Error("failed to delete article", "article_id", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to delete article")
	}
	return c.JSON(DeleteResponse{ID: id, Records: n})
}

// handleReconcile drops index records whose article no longer exists.
func (s *Server) handleReconcile(c *fiber.Ctx) error {
	n, err := s.config.Pipeline.Reconcile(c.Context())
	if err != nil {
		s.logger.Error("reconcile failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "reconcile failed")
	}
	return c.JSON(map[string]int{"removed": n})
}

func (s *Server) storeError(c *fiber.Ctx, err error) error {
	var nf storage.NotFoundError
	if errors.As(err, &nf) {
		return errorJSON(c, fiber.StatusNotFound, nf.Error())
	}
	s.logger.Error("store request failed", "error", err)
	return errorJSON(c, fiber.StatusInternalServerError, "store request failed")
}
