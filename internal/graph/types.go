// Package graph holds the workspace dependency graph: file nodes, import
// edges, declared symbols and the reverse import index.
//
// Every mutation updates the forward and reverse indexes under one write lock,
// so readers observe a file either before or after an update, never between.
package graph

import (
	"time"

	"codekb/internal/lang"
	"codekb/internal/parser"
)

// FileNode is a source file known to the graph.
type FileNode struct {
	Path         string            `json:"path"`
	Language     lang.Language     `json:"language"`
	Size         int64             `json:"size"`
	ModTimeNanos int64             `json:"mtimeNanos"`
	ParsedAt     time.Time         `json:"parsedAt"`
	Skip         parser.SkipReason `json:"skip,omitempty"`
}

// ImportEdge is one import written in Src. Dst is the resolved workspace path
// when Resolved is set, otherwise the raw module identifier.
type ImportEdge struct {
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	Raw      string `json:"raw"`
	Resolved bool   `json:"resolved"`
}

// FileFacts is everything attributed to one file. Edges must all have
// Src == File.Path.
type FileFacts struct {
	File    FileNode        `json:"file"`
	Imports []string        `json:"imports"`
	Edges   []ImportEdge    `json:"edges"`
	Symbols []parser.Symbol `json:"symbols"`
}

// HubEntry is a file with its number of distinct importers.
type HubEntry struct {
	Path     string `json:"path"`
	InDegree int    `json:"inDegree"`
}

// Cycle is a strongly connected set of files. SelfLoop marks a file that
// imports itself.
type Cycle struct {
	Files    []string `json:"files"`
	SelfLoop bool     `json:"selfLoop"`
}

// Stats summarises graph size.
type Stats struct {
	Files      int `json:"files"`
	Edges      int `json:"edges"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Dangling   int `json:"dangling"`
	Symbols    int `json:"symbols"`
}
