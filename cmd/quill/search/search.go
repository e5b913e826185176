// Package searchcmder provides the search command, a client for the search
// endpoint of a running quill server.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	apisearch "github.com/papercomputeco/quill/api/search"
	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/config"
)

const requestTimeout = 2 * time.Minute

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type searchCommander struct {
	query     string
	topK      int
	quiet     bool
	jsonOut   bool
	summaries bool

	apiTarget string
}

const searchLongDesc string = `Search indexed articles via the quill API.

Returns the articles most similar in meaning to the query text. Long
articles list their best matching sections. When the server cannot embed
the query, the most recent articles are returned and marked as fallback
results.

Use --quiet to print only article URLs, one per line, or --json for the raw
response.

Examples:
  quill search "structured concurrency in Go"
  quill search "vector databases" --top 10 --summaries
  quill search "profiling" --quiet --api-target http://localhost:8081`

const searchShortDesc string = "Search indexed articles"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ClientFlags, []string{config.FlagAPITarget})
			cmder.apiTarget = v.GetString("client.api_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&cmder.topK, "top", "k", apisearch.DefaultTopK, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only article URLs, one per line")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Output the raw JSON response")
	cmd.Flags().BoolVar(&cmder.summaries, "summaries", false, "Render article summaries")
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *searchCommander) run(ctx context.Context, w io.Writer) error {
	output, err := SearchAPI(ctx, c.apiTarget, c.query, c.topK)
	if err != nil {
		return err
	}

	switch {
	case c.jsonOut:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(output)

	case c.quiet:
		for _, r := range output.Results {
			fmt.Fprintln(w, r.URL)
		}
		return nil
	}

	PrintResults(w, output, c.summaries)
	return nil
}

// PrintResults renders output for a terminal.
func PrintResults(w io.Writer, output *apisearch.Output, summaries bool) {
	if output.Count == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "\n%s %s\n",
		cliui.HeaderStyle.Render("Search Results for:"),
		urlStyle.Render(fmt.Sprintf("%q", output.Query)),
	)
	if output.Fallback {
		fmt.Fprintf(w, "%s\n", cliui.WarnStyle.Render("No semantic matches available; showing the most recent articles."))
	}
	fmt.Fprintln(w)

	for i, r := range output.Results {
		printResult(w, i+1, r, output.Fallback, summaries)
	}
}

func printResult(w io.Writer, rank int, r apisearch.Result, fallback, summaries bool) {
	score := "recent"
	if !fallback {
		score = fmt.Sprintf("distance: %.4f", r.Distance)
	}
	fmt.Fprintf(w, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		titleStyle.Render(r.Title),
		scoreStyle.Render(score),
	)
	fmt.Fprintf(w, "      %s\n", urlStyle.Render(r.URL))

	var meta []string
	if r.Author != "" {
		meta = append(meta, r.Author)
	}
	if !r.PublishedAt.IsZero() {
		meta = append(meta, r.PublishedAt.Format("2006-01-02"))
	}
	if r.ReducedConfidence {
		meta = append(meta, "reduced confidence")
	}
	if len(meta) > 0 {
		fmt.Fprintf(w, "      %s\n", cliui.DimStyle.Render(strings.Join(meta, " · ")))
	}

	for _, s := range r.Sections {
		fmt.Fprintf(w, "      %s %s %s\n",
			sectionStyle.Render(" ├─"),
			s.Title,
			cliui.DimStyle.Render(fmt.Sprintf("(section %d, %.4f)", s.Index, s.Distance)),
		)
	}

	if summaries && r.Summary != "" {
		rendered, err := cliui.RenderMarkdown(r.Summary)
		if err != nil {
			rendered = r.Summary
		}
		fmt.Fprint(w, rendered)
	}

	fmt.Fprintln(w)
}

// SearchAPI calls the quill search API and returns the parsed output.
func SearchAPI(ctx context.Context, apiTarget, query string, topK int) (*apisearch.Output, error) {
	searchURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	searchURL.Path = "/v1/search"
	q := searchURL.Query()
	q.Set("query", query)
	q.Set("top_k", strconv.Itoa(topK))
	searchURL.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to quill API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var output apisearch.Output
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &output, nil
}
