package plan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// Source loads a catalog definition.
type Source interface {
	Load(ctx context.Context) (Definition, error)
}

// Fingerprinter is implemented by sources that can cheaply tell whether their content changed.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

type staticSource struct {
	def Definition
}

// NewStaticSource returns a source that always yields a copy of def.
func NewStaticSource(def Definition) Source {
	return &staticSource{def: def.Clone()}
}

func (s *staticSource) Load(ctx context.Context) (Definition, error) {
	if err := ctx.Err(); err != nil {
		return Definition{}, err
	}
	return s.def.Clone(), nil
}

// FileSource reads a YAML or JSON catalog from disk.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Load(ctx context.Context) (Definition, error) {
	if err := ctx.Err(); err != nil {
		return Definition{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Definition{}, errors.Join(ErrSourceUnavailable, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return def, nil
}

// Fingerprint returns the sha256 of the file content.
func (s *FileSource) Fingerprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", errors.Join(ErrSourceUnavailable, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
