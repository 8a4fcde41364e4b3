package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".json"

// FileStore guarda cada entrada como un archivo <dir>/<hash>.json.
// Las escrituras van a un temporal + rename para no dejar archivos a medias.
type FileStore struct {
	dir string
}

// NewFileStore crea (si hace falta) el directorio y devuelve el store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache.NewFileStore: mkdir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir devuelve el directorio de la cache.
func (s *FileStore) Dir() string { return s.dir }

// Path devuelve la ruta del archivo para un id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

func (s *FileStore) Read(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStore) Write(_ context.Context, id string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op tras el rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	err := os.Remove(s.Path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List devuelve los ids de todas las entradas del directorio.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	return ids, nil
}

var (
	_ Store  = (*FileStore)(nil)
	_ Lister = (*FileStore)(nil)
)
