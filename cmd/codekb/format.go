package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp any) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatYAML round-trips through JSON so the json tags decide field names.
func formatYAML(resp any) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("failed to decode JSON: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

func formatHuman(resp any) (string, error) {
	switch v := resp.(type) {
	case *StatusResponseCLI:
		return formatStatusHuman(v), nil
	case *IndexResponseCLI:
		return formatIndexHuman(v), nil
	case *HubsResponseCLI:
		return formatHubsHuman(v), nil
	case *CyclesResponseCLI:
		return formatCyclesHuman(v), nil
	case *ImportersResponseCLI:
		return formatImportersHuman(v), nil
	case *RelatedResponseCLI:
		return formatRelatedHuman(v), nil
	case *KBResponseCLI:
		return formatKBHuman(v), nil
	default:
		return formatJSON(resp)
	}
}

func formatHubsHuman(resp *HubsResponseCLI) string {
	var b strings.Builder
	b.WriteString("Hub files\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	if len(resp.Hubs) == 0 {
		b.WriteString("No file is imported by another file.\n")
	}
	for i, h := range resp.Hubs {
		fmt.Fprintf(&b, "%3d. %-48s %4d\n", i+1, h.Path, h.InDegree)
	}
	return strings.TrimRight(b.String(), "\n") + staleNote(resp.Stale)
}

func formatCyclesHuman(resp *CyclesResponseCLI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import cycles: %d\n", len(resp.Cycles))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	for i, c := range resp.Cycles {
		if c.SelfLoop {
			fmt.Fprintf(&b, "\n%d. %s imports itself\n", i+1, c.Files[0])
			continue
		}
		fmt.Fprintf(&b, "\n%d. %d files\n", i+1, len(c.Files))
		for _, f := range c.Files {
			fmt.Fprintf(&b, "   %s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n") + staleNote(resp.Stale)
}

func formatImportersHuman(resp *ImportersResponseCLI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", resp.Path)
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	writeList(&b, fmt.Sprintf("Imported by (%d)", len(resp.Importers)), resp.Importers)
	b.WriteString("\n")
	writeList(&b, fmt.Sprintf("Imports (%d)", len(resp.Imports)), resp.Imports)
	return strings.TrimRight(b.String(), "\n") + staleNote(resp.Stale)
}

func formatRelatedHuman(resp *RelatedResponseCLI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Files related to %s\n", strings.Join(resp.Seeds, ", "))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	if len(resp.Results) == 0 {
		b.WriteString("No related files.\n")
	}
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "  %.4f  %s\n", r.Score, r.Path)
		if len(r.Via) > 1 {
			fmt.Fprintf(&b, "          via %s\n", strings.Join(r.Via, " → "))
		}
	}
	return strings.TrimRight(b.String(), "\n") + staleNote(resp.Stale)
}

func writeList(b *strings.Builder, title string, items []string) {
	b.WriteString(title + ":\n")
	if len(items) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, it := range items {
		b.WriteString("  " + it + "\n")
	}
}

// staleNote is appended to human output computed from a stale graph.
func staleNote(stale bool) string {
	if stale {
		return "\n\nNote: the index is stale; run 'codekb index' to refresh."
	}
	return ""
}
