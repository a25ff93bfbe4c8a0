package presentation

import (
	"encoding/json"
	"io"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatSnapshot formats a registry snapshot as JSON
func (f *Formatter) FormatSnapshot(snapshot SnapshotDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

// FormatLanguage formats a single language table as JSON
func (f *Formatter) FormatLanguage(language LanguageDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(language)
}

// FormatRecipe formats a resolved recipe as JSON
func (f *Formatter) FormatRecipe(recipe RecipeDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(recipe)
}
