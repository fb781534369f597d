package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Loader yields the raw template documents of one source.
// An error means the source itself could not be read.
type Loader interface {
	Load(ctx context.Context) ([]Document, error)
}

// DirLoader reads <root>/starter, <root>/advanced and any template files
// placed directly under root. Files in the typed subdirectories get a type hint.
type DirLoader struct {
	Root string
}

func NewDirLoader(root string) *DirLoader {
	return &DirLoader{Root: root}
}

func (l *DirLoader) Load(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(l.Root)
	if err != nil {
		return nil, fmt.Errorf("templates dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates dir [%s] is not a directory", l.Root)
	}

	var docs []Document
	rootDocs, err := readDir(ctx, l.Root, "")
	if err != nil {
		return nil, err
	}
	docs = append(docs, rootDocs...)

	for _, typ := range []Type{TypeStarter, TypeAdvanced} {
		dir := filepath.Join(l.Root, string(typ))
		typed, err := readDir(ctx, dir, typ)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("templates dir [%s] not present, skipping", dir)
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, typed...)
	}

	return docs, nil
}

func readDir(ctx context.Context, dir string, hint Type) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir [%s]: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var docs []Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		format, ok := FormatForPath(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			// one unreadable file must not block the rest
			log.Errorf("read template file [%s]: %s", path, err)
			continue
		}
		docs = append(docs, Document{
			Source:   path,
			Format:   format,
			TypeHint: hint,
			Raw:      raw,
		})
	}
	return docs, nil
}

// StaticLoader serves documents held in memory.
type StaticLoader struct {
	Documents []Document
}

func NewStaticLoader(docs ...Document) *StaticLoader {
	return &StaticLoader{Documents: docs}
}

func (l *StaticLoader) Load(_ context.Context) ([]Document, error) {
	out := make([]Document, len(l.Documents))
	copy(out, l.Documents)
	return out, nil
}
