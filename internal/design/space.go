package design

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// GeneKind distinguishes continuous and discrete genes
type GeneKind string

const (
	Continuous GeneKind = "continuous"
	Discrete   GeneKind = "discrete"
)

var (
	ErrEmptySpace     = errors.New("design space must contain at least one gene")
	ErrVectorLength   = errors.New("design vector length does not match design space")
	ErrInvalidChoice  = errors.New("value is not a member of the discrete choice set")
	ErrOutOfBounds    = errors.New("value is outside continuous bounds")
	ErrUnknownGene    = errors.New("unknown gene")
	ErrMissingGene    = errors.New("missing gene value")
	ErrNonFiniteValue = errors.New("gene value is not finite")
)

// Gene describes one dimension of the search domain
type Gene struct {
	Name    string
	Kind    GeneKind
	Lower   float64
	Upper   float64
	Choices []float64
	// Labels optionally names each discrete choice, aligned with Choices
	Labels []string
}

// Span returns the width of a continuous gene, or the number of choices of a discrete gene
func (g Gene) Span() float64 {
	if g.Kind == Discrete {
		return float64(len(g.Choices))
	}
	return g.Upper - g.Lower
}

// ChoiceIndex returns the index of v in the choice set, or -1
func (g Gene) ChoiceIndex(v float64) int {
	for i, c := range g.Choices {
		if c == v {
			return i
		}
	}
	return -1
}

// Label returns the label of discrete value v, falling back to its numeric form
func (g Gene) Label(v float64) string {
	if i := g.ChoiceIndex(v); i >= 0 && i < len(g.Labels) {
		return g.Labels[i]
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Space is an ordered, immutable list of genes
type Space struct {
	genes []Gene
	index map[string]int
}

// NewSpace validates genes and builds a space. The slice is copied.
func NewSpace(genes []Gene) (*Space, error) {
	if len(genes) == 0 {
		return nil, ErrEmptySpace
	}

	s := &Space{
		genes: make([]Gene, len(genes)),
		index: make(map[string]int, len(genes)),
	}
	for i, g := range genes {
		if g.Name == "" {
			return nil, fmt.Errorf("gene %d: name cannot be empty", i)
		}
		if _, dup := s.index[g.Name]; dup {
			return nil, fmt.Errorf("duplicate gene name: %s", g.Name)
		}
		switch g.Kind {
		case Continuous:
			if math.IsNaN(g.Lower) || math.IsNaN(g.Upper) || math.IsInf(g.Lower, 0) || math.IsInf(g.Upper, 0) {
				return nil, fmt.Errorf("gene %s: bounds must be finite", g.Name)
			}
			if g.Lower >= g.Upper {
				return nil, fmt.Errorf("gene %s: lower bound %g must be below upper bound %g", g.Name, g.Lower, g.Upper)
			}
			g.Choices = nil
			g.Labels = nil
		case Discrete:
			if len(g.Choices) == 0 {
				return nil, fmt.Errorf("gene %s: discrete choice set cannot be empty", g.Name)
			}
			if len(g.Labels) > 0 && len(g.Labels) != len(g.Choices) {
				return nil, fmt.Errorf("gene %s: %d labels for %d choices", g.Name, len(g.Labels), len(g.Choices))
			}
			seen := make(map[float64]bool, len(g.Choices))
			for _, c := range g.Choices {
				if math.IsNaN(c) || math.IsInf(c, 0) {
					return nil, fmt.Errorf("gene %s: choices must be finite", g.Name)
				}
				if seen[c] {
					return nil, fmt.Errorf("gene %s: duplicate choice %g", g.Name, c)
				}
				seen[c] = true
			}
			g.Choices = append([]float64(nil), g.Choices...)
			g.Labels = append([]string(nil), g.Labels...)
			g.Lower, g.Upper = minMax(g.Choices)
		default:
			return nil, fmt.Errorf("gene %s: unknown kind %q", g.Name, g.Kind)
		}
		s.genes[i] = g
		s.index[g.Name] = i
	}
	return s, nil
}

// Len returns the number of genes
func (s *Space) Len() int {
	return len(s.genes)
}

// Gene returns the i-th gene
func (s *Space) Gene(i int) Gene {
	return s.genes[i]
}

// Genes returns a copy of the gene list
func (s *Space) Genes() []Gene {
	out := make([]Gene, len(s.genes))
	copy(out, s.genes)
	return out
}

// Names returns gene names in order
func (s *Space) Names() []string {
	names := make([]string, len(s.genes))
	for i, g := range s.genes {
		names[i] = g.Name
	}
	return names
}

// Lookup returns the position of a gene by name
func (s *Space) Lookup(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func minMax(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[0], sorted[len(sorted)-1]
}
