// Package lang maps source files to the languages codekb knows how to analyze.
package lang

import (
	"path/filepath"
	"strings"
)

// Language represents a supported programming language.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
)

// Family groups languages that share import and resolution semantics.
type Family string

const (
	FamilyPython Family = "python"
	FamilyJS     Family = "js"
	FamilyGo     Family = "go"
	FamilyOther  Family = "other"
)

// All returns every language codekb recognizes, whether or not a grammar is loaded for it.
func All() []Language {
	return []Language{LangGo, LangJavaScript, LangTypeScript, LangTSX, LangPython, LangRust, LangJava, LangKotlin}
}

// FromExtension returns the Language for a file extension (including the dot).
func FromExtension(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".go":
		return LangGo, true
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py", ".pyw", ".pyi":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}

// FromPath returns the Language for a file path based on its extension.
func FromPath(path string) (Language, bool) {
	return FromExtension(filepath.Ext(path))
}

// IsTracked reports whether a path has an extension codekb tracks.
func IsTracked(path string) bool {
	_, ok := FromPath(path)
	return ok
}

// Family returns the import-semantics family for the language.
func (l Language) Family() Family {
	switch l {
	case LangPython:
		return FamilyPython
	case LangJavaScript, LangTypeScript, LangTSX:
		return FamilyJS
	case LangGo:
		return FamilyGo
	default:
		return FamilyOther
	}
}

// Parse converts a configuration string to a Language.
func Parse(s string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All() {
		if l == known {
			return l, true
		}
	}
	return "", false
}
