package artifacts

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/james-bowman/sparse"
)

// Projection is a pre-fitted linear reduction: (x - mean) · componentsᵀ.
type Projection struct {
	Components [][]float64 `json:"components"`
	Mean       []float64   `json:"mean,omitempty"`

	comp *mat.Dense
}

func (p *Projection) init() error {
	if len(p.Components) == 0 || len(p.Components[0]) == 0 {
		return errors.New("projection has no components")
	}
	out, in := len(p.Components), len(p.Components[0])
	p.comp = mat.NewDense(out, in, nil)
	for i, row := range p.Components {
		if len(row) != in {
			return fmt.Errorf("%w: component %d has %d values, want %d", ErrShapeMismatch, i, len(row), in)
		}
		p.comp.SetRow(i, row)
	}
	if p.Mean != nil && len(p.Mean) != in {
		return fmt.Errorf("%w: mean has %d values, want %d", ErrShapeMismatch, len(p.Mean), in)
	}
	return nil
}

// Dims returns the input and output dimensionality.
func (p *Projection) Dims() (in, out int) {
	r, c := p.comp.Dims()
	return c, r
}

// Transform projects the rows of x.
func (p *Projection) Transform(x mat.Matrix) (*mat.Dense, error) {
	rows, cols := x.Dims()
	in, out := p.Dims()
	if cols != in {
		return nil, fmt.Errorf("%w: input has %d columns, projection expects %d", ErrShapeMismatch, cols, in)
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}

	res := mat.NewDense(rows, out, nil)
	res.Mul(x, p.comp.T())
	p.center(res)
	return res, nil
}

// TransformSparse projects the rows of a sparse matrix without densifying it.
func (p *Projection) TransformSparse(x *sparse.CSR) (*mat.Dense, error) {
	rows, cols := x.Dims()
	in, out := p.Dims()
	if cols != in {
		return nil, fmt.Errorf("%w: input has %d columns, projection expects %d", ErrShapeMismatch, cols, in)
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}

	raw := x.RawMatrix()
	res := mat.NewDense(rows, out, nil)
	for i := 0; i < rows; i++ {
		lo, hi := raw.Indptr[i], raw.Indptr[i+1]
		if lo == hi {
			continue
		}
		dst := res.RawRowView(i)
		for c := range dst {
			comp := p.comp.RawRowView(c)
			var sum float64
			for k := lo; k < hi; k++ {
				sum += raw.Data[k] * comp[raw.Ind[k]]
			}
			dst[c] = sum
		}
	}
	p.center(res)
	return res, nil
}

// center subtracts mean · componentsᵀ from every row.
func (p *Projection) center(res *mat.Dense) {
	if p.Mean == nil {
		return
	}
	_, out := p.Dims()
	offset := mat.NewVecDense(out, nil)
	offset.MulVec(p.comp, mat.NewVecDense(len(p.Mean), p.Mean))

	rows, _ := res.Dims()
	for i := 0; i < rows; i++ {
		row := res.RawRowView(i)
		for j := range row {
			row[j] -= offset.AtVec(j)
		}
	}
}
