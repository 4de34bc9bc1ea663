// Package artifacts loads the pre-fitted models used by the digest pipeline:
// a term vectorizer and two chained projections, read from fixed file names.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/james-bowman/sparse"
)

// Fixed artifact file names inside the model directory.
const (
	VectorizerFile = "vectorizer"
	SVDFile        = "svd"
	UFile          = "u"
)

// ErrShapeMismatch is returned when artifact dimensions do not line up.
var ErrShapeMismatch = errors.New("artifact shape mismatch")

// Set holds the loaded models. It is read-only after Load.
type Set struct {
	Vectorizer *Vectorizer
	SVD        *Projection
	U          *Projection
}

// Load reads all three artifacts from dir. Any missing or corrupt file is an error.
func Load(dir string) (*Set, error) {
	var set Set
	set.Vectorizer = &Vectorizer{}
	if err := decodeFile(filepath.Join(dir, VectorizerFile), set.Vectorizer); err != nil {
		return nil, err
	}
	if err := set.Vectorizer.init(); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", VectorizerFile, err)
	}

	set.SVD = &Projection{}
	if err := decodeFile(filepath.Join(dir, SVDFile), set.SVD); err != nil {
		return nil, err
	}
	if err := set.SVD.init(); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", SVDFile, err)
	}

	set.U = &Projection{}
	if err := decodeFile(filepath.Join(dir, UFile), set.U); err != nil {
		return nil, err
	}
	if err := set.U.init(); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", UFile, err)
	}

	if in, _ := set.SVD.Dims(); in != set.Vectorizer.Size() {
		return nil, fmt.Errorf("%w: svd expects %d terms, vectorizer has %d", ErrShapeMismatch, in, set.Vectorizer.Size())
	}
	_, svdOut := set.SVD.Dims()
	if uIn, _ := set.U.Dims(); uIn != svdOut {
		return nil, fmt.Errorf("%w: u expects %d inputs, svd produces %d", ErrShapeMismatch, uIn, svdOut)
	}
	return &set, nil
}

func decodeFile(path string, into any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(into); err != nil {
		return fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Embed maps vectorizer output into the embedding space: svd first, then u.
func (s *Set) Embed(x *sparse.CSR) (*mat.Dense, error) {
	reduced, err := s.SVD.TransformSparse(x)
	if err != nil {
		return nil, fmt.Errorf("svd transform: %w", err)
	}
	if r, _ := reduced.Dims(); r == 0 {
		return reduced, nil
	}
	embedding, err := s.U.Transform(reduced)
	if err != nil {
		return nil, fmt.Errorf("u transform: %w", err)
	}
	return embedding, nil
}

// Provider loads the artifact set on first use and keeps it.
// Failed loads are not cached, so fixing the files on disk recovers without a restart.
type Provider struct {
	dir  string
	load func(string) (*Set, error)

	mu  sync.Mutex
	set *Set
}

// NewProvider returns a provider reading from dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir, load: Load}
}

// Get returns the loaded artifacts.
func (p *Provider) Get() (*Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.set != nil {
		return p.set, nil
	}
	set, err := p.load(p.dir)
	if err != nil {
		return nil, err
	}
	p.set = set
	return set, nil
}
