package ir

import (
	"io"
	"strconv"
	"strings"
)

// Labels assigns "labelN" names to branch targets in chain order.
func (b *Body) Labels() map[Stmt]string {
	targets := make(map[Stmt]bool)
	for _, s := range b.Units.stmts {
		for _, t := range Targets(s) {
			targets[t] = true
		}
	}
	labels := make(map[Stmt]string, len(targets))
	for _, s := range b.Units.stmts {
		if targets[s] {
			labels[s] = "label" + strconv.Itoa(len(labels)+1)
		}
	}
	return labels
}

// String renders b in its text form. Parse accepts the result.
func (b *Body) String() string {
	var sb strings.Builder
	_ = b.Print(&sb)
	return sb.String()
}

// Print writes the text form of b to w.
func (b *Body) Print(w io.Writer) error {
	var sb strings.Builder

	// Declarations grouped by type, in order of first appearance.
	var order []string
	byType := make(map[string][]string)
	for _, l := range b.Locals {
		key := l.T.String()
		if _, ok := byType[key]; !ok {
			order = append(order, key)
		}
		byType[key] = append(byType[key], l.Name)
	}
	for _, t := range order {
		sb.WriteString("    ")
		sb.WriteString(t)
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(byType[t], ", "))
		sb.WriteString(";\n")
	}
	if len(order) > 0 && b.Units.Len() > 0 {
		sb.WriteByte('\n')
	}

	labels := b.Labels()
	for _, s := range b.Units.stmts {
		if l, ok := labels[s]; ok {
			sb.WriteString("  ")
			sb.WriteString(l)
			sb.WriteString(":\n")
		}
		sb.WriteString("    ")
		sb.WriteString(formatStmt(s, labels))
		sb.WriteString(";\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func formatStmt(s Stmt, labels map[Stmt]string) string {
	switch s := s.(type) {
	case *IfStmt:
		return "if " + s.Cond.String() + " goto " + labels[s.Target]
	case *GotoStmt:
		return "goto " + labels[s.Target]
	}
	return s.String()
}
