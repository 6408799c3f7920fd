// Package content resolves page numbers to deliverable media.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"wirdbot/internal/transport"
)

var ErrMissing = errors.New("page content missing")

// Source resolves a page to media the transport can send.
type Source interface {
	Page(n int) (transport.Media, error)
}

// Dir serves "<root>/<n>.jpg" files.
type Dir struct {
	Root string
	Ext  string // default ".jpg"
}

func NewDir(root string) *Dir { return &Dir{Root: root, Ext: ".jpg"} }

func (d *Dir) Path(n int) string {
	ext := d.Ext
	if ext == "" {
		ext = ".jpg"
	}
	return filepath.Join(d.Root, fmt.Sprintf("%d%s", n, ext))
}

func (d *Dir) Page(n int) (transport.Media, error) {
	p := d.Path(n)
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return transport.Media{}, fmt.Errorf("%w: %s", ErrMissing, p)
		}
		return transport.Media{}, err
	}
	if st.IsDir() || st.Size() == 0 {
		return transport.Media{}, fmt.Errorf("%w: %s", ErrMissing, p)
	}
	return transport.Media{Path: p}, nil
}

// Count returns how many consecutive pages starting at 1 exist, up to max.
func (d *Dir) Count(max int) int {
	n := 0
	for i := 1; i <= max; i++ {
		if _, err := d.Page(i); err != nil {
			break
		}
		n++
	}
	return n
}
