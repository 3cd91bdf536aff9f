package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/kalambet/keydocs/internal/config"
	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/ingest"
	"github.com/kalambet/keydocs/internal/relevance"
)

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// documentPayload builds a /ingest/document body for a file on disk. The
// content is always sent base64-encoded so binary formats survive JSON.
func documentPayload(provider, name, path string, data []byte, tags []string) map[string]any {
	if name == "" {
		name = filepath.Base(path)
	}
	return map[string]any{
		"provider_id":    provider,
		"name":           name,
		"filename":       filepath.Base(path),
		"tags":           tags,
		"content_base64": base64.StdEncoding.EncodeToString(data),
	}
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index documentation for a provider",
	Long: `Index documentation for a provider.

Examples:
  keydocs ingest --provider stripe --text "Use idempotency keys on POST requests" --section "API,Idempotency"
  keydocs ingest --provider stripe --file ./webhooks.md --tags payments
  keydocs ingest --provider aws --name "S3 guide" --file ./s3.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		name, _ := cmd.Flags().GetString("name")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		section, _ := cmd.Flags().GetString("section")
		contentType, _ := cmd.Flags().GetString("type")
		tags := splitList(mustString(cmd, "tags"))

		if provider == "" {
			return fmt.Errorf("--provider is required")
		}
		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if contentType != "" {
			if _, err := docs.ParseContentType(contentType); err != nil {
				return err
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			resp, err := client.post(cmd.Context(), "/ingest/document", documentPayload(provider, name, file, data, tags))
			if err != nil {
				return err
			}
			var res ingest.DocumentResult
			if err := decodeJSON(resp, &res); err != nil {
				return err
			}
			if res.Skipped {
				printWarning("%s unchanged, skipped", file)
				return nil
			}
			printSuccess("Indexed %s: %d chunks in library %s", file, len(res.ChunkIDs), res.LibraryID)
			return nil
		}

		entry := ingest.Entry{
			ProviderID:   provider,
			ProviderName: name,
			SourceText:   text,
			SectionPath:  splitList(section),
			ContentType:  contentType,
			Tags:         tags,
			Title:        title,
		}
		resp, err := client.post(cmd.Context(), "/ingest", entry)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Stored chunk %s", result["chunk_id"])
		return nil
	},
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	ingestCmd.Flags().String("provider", "", "provider id, e.g. stripe")
	ingestCmd.Flags().String("name", "", "library name (defaults to the provider or file name)")
	ingestCmd.Flags().String("text", "", "documentation text to index")
	ingestCmd.Flags().String("file", "", "document to index (.md, .txt or .pdf)")
	ingestCmd.Flags().String("title", "", "title for a --text passage")
	ingestCmd.Flags().String("section", "", "comma-separated section path for a --text passage")
	ingestCmd.Flags().String("type", "", "content type (classified from the text when omitted)")
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- search ---

type searchOptions struct {
	query      string
	minSim     float64
	limit      int
	libraries  []string
	types      []string
	section    []string
	boost      bool
	boostIsSet bool
}

func (o searchOptions) request() map[string]any {
	req := map[string]any{"query": o.query}
	if o.minSim >= 0 {
		req["min_similarity"] = o.minSim
	}
	if o.limit > 0 {
		req["max_results"] = o.limit
	}
	if len(o.libraries) > 0 {
		req["library_ids"] = o.libraries
	}
	if len(o.types) > 0 {
		req["content_types"] = o.types
	}
	if len(o.section) > 0 {
		req["section_filter"] = o.section
	}
	if o.boostIsSet {
		req["boost_recent"] = o.boost
	}
	return req
}

type searchResult struct {
	Chunk      docs.Chunk `json:"chunk"`
	LibraryID  string     `json:"library_id"`
	Similarity float64    `json:"similarity"`
	Relevance  float64    `json:"relevance"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed documentation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := searchOptions{query: strings.Join(args, " ")}
		opts.minSim, _ = cmd.Flags().GetFloat64("min")
		opts.limit, _ = cmd.Flags().GetInt("limit")
		opts.libraries = splitList(mustString(cmd, "library"))
		opts.types = splitList(mustString(cmd, "type"))
		opts.section = splitList(mustString(cmd, "section"))
		opts.boost, _ = cmd.Flags().GetBool("recent")
		opts.boostIsSet = cmd.Flags().Changed("recent")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/search", opts.request())
		if err != nil {
			return err
		}
		var out struct {
			Results []searchResult `json:"results"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return printJSON(w, out.Results)
		}
		if len(out.Results) == 0 {
			fmt.Fprintln(w, "No results found.")
			return nil
		}
		for i, r := range out.Results {
			fmt.Fprintf(w, "\n%s %s [similarity: %.3f, relevance: %.3f]\n",
				colorize(colorBold, fmt.Sprintf("%d.", i+1)), r.Chunk.Title, r.Similarity, r.Relevance)
			if len(r.Chunk.SectionPath) > 0 {
				fmt.Fprintf(w, "  %s\n", colorize(colorCyan, strings.Join(r.Chunk.SectionPath, " > ")))
			}
			text := r.Chunk.Content
			if utf8.RuneCountInString(text) > 400 {
				text = string([]rune(text)[:400]) + "..."
			}
			fmt.Fprintf(w, "  %s\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Float64("min", -1, "minimum similarity in [0, 1] (server default when unset)")
	searchCmd.Flags().Int("limit", 0, "maximum number of results (server default when unset)")
	searchCmd.Flags().String("library", "", "comma-separated library ids to search")
	searchCmd.Flags().String("type", "", "comma-separated content types to include")
	searchCmd.Flags().String("section", "", "comma-separated terms; keep chunks whose section path contains any of them")
	searchCmd.Flags().Bool("recent", false, "boost recently added chunks")
	searchCmd.Flags().Bool("json", false, "print raw JSON results")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}
		var stats map[string]int
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, k := range []string{"total_libraries", "total_chunks", "total_embeddings", "total_sessions", "total_messages", "total_generations"} {
			fmt.Fprintf(w, "  %s %d\n", colorize(colorBold, strings.TrimPrefix(k, "total_")+":"), stats[k])
		}
		return nil
	},
}

// --- libraries ---

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List or delete documentation libraries",
}

var librariesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List libraries",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/libraries"
		if provider != "" {
			path += "?provider=" + url.QueryEscape(provider)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var libs []docs.Library
		if err := decodeJSON(resp, &libs); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(libs) == 0 {
			fmt.Fprintln(w, "No libraries found.")
			return nil
		}
		for _, lib := range libs {
			fmt.Fprintf(w, "%s  %-10s  %4d chunks  %s\n",
				colorize(colorCyan, lib.ID), lib.Status, lib.ChunkCount, lib.Name)
		}
		return nil
	},
}

var librariesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a library and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/libraries/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted library %s", args[0])
		return nil
	},
}

func init() {
	librariesListCmd.Flags().String("provider", "", "only libraries owned by this provider")
	librariesCmd.AddCommand(librariesListCmd, librariesDeleteCmd)
	rootCmd.AddCommand(librariesCmd)
}

// --- suggest ---

var suggestCmd = &cobra.Command{
	Use:   "suggest <credential-id>...",
	Short: "Rank credentials for an editing context",
	Long: `Rank credentials for an editing context using recorded usage.

Example:
  keydocs suggest --app vscode --ext .ts --project web --lang typescript stripe-test stripe-live`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := relevance.Context{
			ActiveApp:     mustString(cmd, "app"),
			FileExtension: mustString(cmd, "ext"),
			FilePath:      mustString(cmd, "path"),
			ProjectType:   mustString(cmd, "project"),
			Language:      mustString(cmd, "lang"),
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/context/analyze", map[string]any{
			"context":       ctx,
			"candidate_ids": args,
		})
		if err != nil {
			return err
		}
		var pred relevance.Prediction
		if err := decodeJSON(resp, &pred); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(pred.Suggestions) == 0 {
			fmt.Fprintln(w, "No suggestions for this context.")
		}
		for _, s := range pred.Suggestions {
			fmt.Fprintf(w, "%s  %.2f  %s (%s)\n", colorize(colorBold, s.CredentialID), s.Confidence, s.Reason, s.SuggestedFormat)
		}
		fmt.Fprintf(w, "risk: %s\n", pred.Security.RiskLevel)
		for _, r := range pred.Security.Reasons {
			fmt.Fprintf(w, "  - %s\n", r)
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().String("app", "", "focused application")
	suggestCmd.Flags().String("ext", "", "extension of the file being edited")
	suggestCmd.Flags().String("path", "", "path of the file being edited")
	suggestCmd.Flags().String("project", "", "project type, e.g. web or cli")
	suggestCmd.Flags().String("lang", "", "programming language")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
