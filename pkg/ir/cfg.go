// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import "github.com/dominikbraun/graph"

// Digraph builds a label-keyed directed graph of f's CFG from the derived
// successor edges. Labels must be unique, which the verifier enforces.
func Digraph(f *Function) graph.Graph[string, string] {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, b := range f.Blocks {
		_ = g.AddVertex(b.Label)
	}
	for _, b := range f.Blocks {
		for _, s := range b.Succs() {
			// Duplicate edges (and self loops on some stores) are
			// fine to drop: they never change reachability.
			_ = g.AddEdge(b.Label, s.Label)
		}
	}
	return g
}

// ReachableFrom returns the set of blocks reachable from start, start
// included.
func ReachableFrom(f *Function, start *Block) map[*Block]bool {
	byLabel := make(map[string]*Block, len(f.Blocks))
	for _, b := range f.Blocks {
		byLabel[b.Label] = b
	}
	reached := make(map[*Block]bool)
	g := Digraph(f)
	_ = graph.DFS(g, start.Label, func(label string) bool {
		if b := byLabel[label]; b != nil {
			reached[b] = true
		}
		return false
	})
	return reached
}
