package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"codekb/internal/graph"
	"codekb/internal/index"
	"codekb/internal/version"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the dependency graph as zstd-compressed JSON",
	Long: `Exports every file's imports, resolved targets and symbols as a single
JSON document compressed with zstd.

Examples:
  codekb export                      # Writes codekb-graph.json.zst
  codekb export -o /tmp/graph.zst`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "codekb-graph.json.zst", "Output file")
	rootCmd.AddCommand(exportCmd)
}

// GraphExport is the exported document.
type GraphExport struct {
	Version     string             `json:"version"`
	Root        string             `json:"root"`
	ExportedAt  time.Time          `json:"exportedAt"`
	Fingerprint *index.Fingerprint `json:"fingerprint,omitempty"`
	Stats       graph.Stats        `json:"stats"`
	Files       []graph.FileFacts  `json:"files"`
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := newContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := refresh(ctx, s); err != nil {
		return err
	}

	snap := s.GraphSnapshot()
	doc := GraphExport{
		Version:     version.Version,
		Root:        s.Root(),
		ExportedAt:  time.Now().UTC(),
		Fingerprint: s.Fingerprint(),
		Stats:       snap.Stats(),
		Files:       snap.AllFacts(),
	}

	n, err := writeCompressedJSON(exportOutput, doc)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d files to %s (%d bytes)\n", len(doc.Files), exportOutput, n)
	return nil
}

// writeCompressedJSON encodes v into a temp file next to path and renames it
// into place. It returns the compressed size.
func writeCompressedJSON(path string, v any) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".codekb-export-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(v); err != nil {
		_ = enc.Close()
		_ = tmp.Close()
		return 0, fmt.Errorf("encode graph: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("flush zstd stream: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename export: %w", err)
	}
	return info.Size(), nil
}

// readCompressedJSON decodes a file written by writeCompressedJSON.
func readCompressedJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	return json.NewDecoder(dec).Decode(v)
}
