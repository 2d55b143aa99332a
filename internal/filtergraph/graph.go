// Package filtergraph assembles the single transcoder invocation that
// renders one clip: background fitting, character and face-animation
// overlays, subtitles, screen effects, and the audio chain. The graph is
// built as a value with explicit labels so each stage is testable on its
// own and the rendered command line is deterministic for identical inputs.
package filtergraph

import (
	"fmt"
	"strings"
)

// Input is one -i source with its preceding input options.
type Input struct {
	Options []string
	Path    string
}

// chain is one filter chain: input labels, filters, output label.
type chain struct {
	in      []string
	filters []string
	out     string
}

// Graph accumulates inputs and filter chains and renders them into
// -filter_complex form.
type Graph struct {
	inputs []Input
	chains []chain
	labelN int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddInput registers a source and returns its input index.
func (g *Graph) AddInput(path string, options ...string) int {
	g.inputs = append(g.inputs, Input{Options: options, Path: path})
	return len(g.inputs) - 1
}

// Label allocates a fresh link label with the given prefix.
func (g *Graph) Label(prefix string) string {
	g.labelN++
	return fmt.Sprintf("%s%d", prefix, g.labelN)
}

// AddChain appends a filter chain. Empty filter lists become a null filter
// so the chain still renames its stream.
func (g *Graph) AddChain(in []string, filters []string, out string) {
	if len(filters) == 0 {
		filters = []string{"null"}
	}
	g.chains = append(g.chains, chain{in: in, filters: filters, out: out})
}

// InputArgs renders the -i argument list in input order.
func (g *Graph) InputArgs() []string {
	var args []string
	for _, in := range g.inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	return args
}

// FilterComplex renders all chains joined by semicolons.
func (g *Graph) FilterComplex() string {
	parts := make([]string, 0, len(g.chains))
	for _, c := range g.chains {
		var sb strings.Builder
		for _, in := range c.in {
			sb.WriteString("[" + in + "]")
		}
		sb.WriteString(strings.Join(c.filters, ","))
		if c.out != "" {
			sb.WriteString("[" + c.out + "]")
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ";")
}
