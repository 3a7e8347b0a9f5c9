// Package chunkfile saves assembled chunk sequences to JSON and loads them
// back, keyed by collection name, so that extraction and ingestion can run as
// separate steps.
package chunkfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"hybridrag/internal/domain"
)

// Book maps a collection name to its chunks in ingestion order.
type Book map[string][]domain.Chunk

// Write encodes book as indented JSON.
func Write(w io.Writer, book Book) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(book); err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	return nil
}

// Read decodes a chunk file written by Write.
func Read(r io.Reader) (Book, error) {
	var book Book
	if err := json.NewDecoder(r).Decode(&book); err != nil {
		return nil, fmt.Errorf("%w: decode chunks: %w", domain.ErrParse, err)
	}
	if book == nil {
		book = Book{}
	}
	return book, nil
}

// Save writes book to path, replacing any existing file.
func Save(path string, book Book) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, book); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a chunk file from path.
func Load(path string) (Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
