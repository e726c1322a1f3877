package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/packager"
)

func newDecodeCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Unpack a mapping JSON into HTML files",
		Long: `Reads the JSON written by "pagesnap run" or returned by the API (either
the full response or just its url_mappings object), decodes every packaged
entry and writes it into the output directory under a sanitized filename.
FILE "-" reads stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			_, err := decodeMapping(in, outDir, cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "output_html", "directory to write HTML files into")
	return cmd
}

// decodeMapping writes every packaged entry in the mapping read from r into
// outDir and reports progress to w. Entries without content are reported
// and skipped. It returns the number of files written.
func decodeMapping(r io.Reader, outDir string, w io.Writer) (int, error) {
	mappings, err := readMappings(r)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}

	urls := make([]string, 0, len(mappings))
	for u := range mappings {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	used := make(map[string]struct{}, len(urls))
	saved := 0
	var errs []error
	for _, u := range urls {
		e := mappings[u]
		if e.Filename == "" || e.Content == "" {
			reason := "missing filename or content"
			if e.Error != nil {
				reason = fmt.Sprintf("%s: %s", e.Error.Code, e.Error.Message)
			}
			fmt.Fprintf(w, "skipped %s (%s)\n", u, reason)
			continue
		}

		raw, err := packager.Decode(e.Content)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		name := uniqueName(safeFilename(e.Filename), used)
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		saved++
		fmt.Fprintf(w, "saved %s to %s\n", u, path)
	}
	return saved, errors.Join(errs...)
}

// readMappings accepts a full SnapshotResponse or a bare url_mappings object.
func readMappings(r io.Reader) (map[string]models.ResultEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		URLMappings map[string]models.ResultEntry `json:"url_mappings"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if envelope.URLMappings != nil {
		return envelope.URLMappings, nil
	}

	var bare map[string]models.ResultEntry
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	return bare, nil
}

// safeFilename keeps letters, digits, '.', '_' and '-'.
func safeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-", r) {
			b.WriteRune(r)
		}
	}
	s := strings.TrimLeft(b.String(), ".")
	if s == "" {
		s = "snapshot.html"
	}
	return s
}

func uniqueName(name string, used map[string]struct{}) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
}
