package ir

import (
	"sort"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"
)

// CFG builds the basic-block control flow graph of b. Block ranges index into
// the statement chain; every call site is recorded with its callee signature.
//
// The algorithm:
//  1. Find block leaders: index 0, branch targets, statements after branches
//     and exits.
//  2. Partition statements into blocks by leaders.
//  3. Compute successor edges from each block's last statement.
func (b *Body) CFG(name string) *lattice.FuncCFG {
	cfg := &lattice.FuncCFG{Name: name}
	stmts := b.Units.stmts
	if len(stmts) == 0 {
		return cfg
	}

	index := make(map[Stmt]int, len(stmts))
	for i, s := range stmts {
		index[s] = i
	}

	// Pass 1: leaders.
	leaders := map[int]bool{0: true}
	for i, s := range stmts {
		targets := Targets(s)
		if len(targets) == 0 && FallsThrough(s) {
			continue
		}
		if i+1 < len(stmts) {
			leaders[i+1] = true
		}
		for _, t := range targets {
			if idx, ok := index[t]; ok {
				leaders[idx] = true
			}
		}
	}
	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: partition.
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(stmts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blk := &lattice.BasicBlock{ID: i, Start: start, End: end}
		for j := start; j < end; j++ {
			if e := InvokeOf(stmts[j]); e != nil {
				blk.Calls = append(blk.Calls, lattice.CallSite{Offset: j, Callee: e.Method.Signature()})
			}
		}
		cfg.Blocks = append(cfg.Blocks, blk)
		leaderToBlock[start] = i
	}

	// Pass 3: successors.
	for _, blk := range cfg.Blocks {
		last := stmts[blk.End-1]
		next, hasNext := leaderToBlock[blk.End]
		switch s := last.(type) {
		case *IfStmt:
			if idx, ok := index[s.Target]; ok {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: leaderToBlock[idx], Cond: "T"})
			}
			if hasNext {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: next, Cond: "F"})
			}
		case *GotoStmt:
			if idx, ok := index[s.Target]; ok {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: leaderToBlock[idx]})
			}
		case *ReturnStmt, *ReturnVoidStmt, *ThrowStmt:
			blk.Term = true
		default:
			if hasNext {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: next})
			}
		}
	}
	return cfg
}

// DOT renders the control flow graph of b as Graphviz source.
func (b *Body) DOT(name string) string {
	g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{b.CFG(name)}}
	return render.DOTCFG(g, name)
}
