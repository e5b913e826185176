// Package indexcmder provides the index command, which embeds stored articles
// into the local vector index.
package indexcmder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/quill/cmd/quill/stack"
	"github.com/papercomputeco/quill/pkg/article"
	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
	"github.com/papercomputeco/quill/pkg/rag"
)

type indexCommander struct {
	file    string
	unsaved bool
	all     bool

	configDir string
	cfg       *config.Config
	logger    *slog.Logger
}

const indexLongDesc string = `Embed articles and write them to the vector index.

Articles are read from the primary store by id. With --file, articles are
first loaded from a JSON file (an array of articles or one article per line)
and stored, then indexed. With --unsaved, every stored article not yet in
the index is indexed; --all reindexes everything.

An article whose embedding fails stays in the store and can be indexed
again later.

Examples:
  quill index 8f2c1a 91bb07
  quill index --file articles.json
  quill index --unsaved`

const indexShortDesc string = "Embed and index stored articles"

func NewIndexCmd() *cobra.Command {
	cmder := &indexCommander{}

	cmd := &cobra.Command{
		Use:   "index [id...]",
		Short: indexShortDesc,
		Long:  indexLongDesc,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && cmder.file == "" && !cmder.unsaved && !cmder.all {
				return errors.New("pass article ids, --file, --unsaved or --all")
			}

			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cfg, err := stack.LoadConfig(cmd, config.CommonFlags)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.logger = stack.NewLogger(cmd)
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	config.AddFlags(cmd, config.CommonFlags)
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Load and store articles from a JSON file before indexing")
	cmd.Flags().BoolVar(&cmder.unsaved, "unsaved", false, "Index every stored article not yet in the index")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Reindex every stored article")

	return cmd
}

func (c *indexCommander) run(ctx context.Context, w io.Writer, ids []string) error {
	st, err := stack.New(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if c.file != "" {
		loaded, err := c.load(ctx, st)
		if err != nil {
			return err
		}
		ids = append(ids, loaded...)
	}

	if c.unsaved || c.all {
		stored, err := st.Store.List(ctx)
		if err != nil {
			return fmt.Errorf("listing articles: %w", err)
		}
		for _, a := range stored {
			if c.all || !a.Saved {
				ids = append(ids, a.ID)
			}
		}
	}

	return IndexArticles(ctx, w, st.Pipeline, dedupe(ids))
}

func (c *indexCommander) load(ctx context.Context, st *stack.Stack) ([]string, error) {
	f, err := os.Open(c.file)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.file, err)
	}
	defer f.Close()

	articles, err := ReadArticles(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.file, err)
	}

	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		a.Saved = false
		if err := st.Store.Put(ctx, a); err != nil {
			return nil, fmt.Errorf("storing %s: %w", a.ID, err)
		}
		ids = append(ids, a.ID)
	}
	c.logger.Info("stored articles", "count", len(ids), "file", c.file)
	return ids, nil
}

// Indexer adds a stored article to the vector index.
type Indexer interface {
	AddDocument(ctx context.Context, id string) (*rag.IngestResult, error)
}

// IndexArticles indexes ids one after another, printing one line per
// article. It returns an error when any article could not be indexed.
func IndexArticles(ctx context.Context, w io.Writer, idx Indexer, ids []string) error {
	failed := 0
	for _, id := range ids {
		res, err := idx.AddDocument(ctx, id)
		if err != nil {
			failed++
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, id, cliui.DimStyle.Render(err.Error()))
			continue
		}
		if res.Status != rag.StatusIndexed {
			failed++
			fmt.Fprintf(w, "  %s %s %s\n", cliui.FailMark, id, cliui.WarnStyle.Render(describe(res)))
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n", cliui.SuccessMark, id, cliui.DimStyle.Render(describe(res)))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d articles were not indexed", failed, len(ids))
	}
	return nil
}

func describe(res *rag.IngestResult) string {
	msg := fmt.Sprintf("%s, %s, %d records", res.Status, res.Strategy, res.Records)
	if res.Sections > 0 {
		msg += fmt.Sprintf(", %d sections", res.Sections)
	}
	if res.ReducedConfidence {
		msg += ", reduced confidence"
	}
	if res.Err != nil {
		msg += ": " + res.Err.Error()
	}
	return msg
}

// ReadArticles decodes either a JSON array of articles or a stream of
// article objects, one after another. Every article is validated.
func ReadArticles(r io.Reader) ([]*article.Article, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var articles []*article.Article
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&articles); err != nil {
			return nil, err
		}
	} else {
		for {
			var a article.Article
			err := dec.Decode(&a)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
			articles = append(articles, &a)
		}
	}

	for _, a := range articles {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return articles, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
