// core/logical_graph.go
package core

// The logical graph is the structural skeleton a function declaration is
// reduced to before hashing: every statement and expression becomes a node
// labeled by its *kind* (and, for operators and calls, by the operator or
// callee name), while identifier references — anything whose only content
// is a variable name a developer could rename freely — are dropped
// entirely. Two functions that differ only by variable names or by
// formatting therefore reduce to the same graph.

import "codeforge/core/sourcelang"

type logicalNode struct {
	id    int
	label string
}

// LogicalGraph is an undirected graph over logicalNode labels, built from a
// single function declaration's AST.
type LogicalGraph struct {
	Nodes []logicalNode
	Edges [][2]int
}

func (g *LogicalGraph) addNode(label string) int {
	id := len(g.Nodes)
	g.Nodes = append(g.Nodes, logicalNode{id: id, label: label})
	return id
}

func (g *LogicalGraph) addEdge(a, b int) {
	g.Edges = append(g.Edges, [2]int{a, b})
}

// BuildLogicalGraph reduces fn to its logical graph.
func BuildLogicalGraph(fn *sourcelang.FuncDecl) *LogicalGraph {
	g := &LogicalGraph{}
	root := g.addNode("Func")
	for _, s := range fn.Body {
		g.buildStmt(s, root)
	}
	return g
}

func (g *LogicalGraph) buildStmt(s sourcelang.Stmt, parent int) {
	switch st := s.(type) {
	case *sourcelang.LetStmt:
		id := g.addNode("LetStmt")
		g.addEdge(parent, id)
		g.buildExpr(st.Value, id)

	case *sourcelang.AssignStmt:
		id := g.addNode("AssignStmt")
		g.addEdge(parent, id)
		g.buildExpr(st.Value, id)

	case *sourcelang.IfStmt:
		id := g.addNode("IfStmt")
		g.addEdge(parent, id)
		g.buildExpr(st.Cond, id)
		thenID := g.addNode("Then")
		g.addEdge(id, thenID)
		for _, s2 := range st.Then {
			g.buildStmt(s2, thenID)
		}
		if st.Else != nil {
			elseID := g.addNode("Else")
			g.addEdge(id, elseID)
			for _, s2 := range st.Else {
				g.buildStmt(s2, elseID)
			}
		}

	case *sourcelang.WhileStmt:
		id := g.addNode("WhileStmt")
		g.addEdge(parent, id)
		g.buildExpr(st.Cond, id)
		bodyID := g.addNode("Body")
		g.addEdge(id, bodyID)
		for _, s2 := range st.Body {
			g.buildStmt(s2, bodyID)
		}

	case *sourcelang.ReturnStmt:
		id := g.addNode("ReturnStmt")
		g.addEdge(parent, id)
		if st.Value != nil {
			g.buildExpr(st.Value, id)
		}

	case *sourcelang.ExprStmt:
		id := g.addNode("ExprStmt")
		g.addEdge(parent, id)
		g.buildExpr(st.Value, id)
	}
}

func (g *LogicalGraph) buildExpr(e sourcelang.Expr, parent int) {
	switch ex := e.(type) {
	case *sourcelang.IntLit:
		id := g.addNode("IntLit")
		g.addEdge(parent, id)
	case *sourcelang.FloatLit:
		id := g.addNode("FloatLit")
		g.addEdge(parent, id)
	case *sourcelang.BoolLit:
		id := g.addNode("BoolLit")
		g.addEdge(parent, id)
	case *sourcelang.Ident:
		// discarded: identifier references carry no structural signal.
	case *sourcelang.BinaryExpr:
		id := g.addNode("BinaryExpr:" + ex.Op)
		g.addEdge(parent, id)
		g.buildExpr(ex.Left, id)
		g.buildExpr(ex.Right, id)
	case *sourcelang.UnaryExpr:
		id := g.addNode("UnaryExpr:" + ex.Op)
		g.addEdge(parent, id)
		g.buildExpr(ex.Operand, id)
	case *sourcelang.CallExpr:
		id := g.addNode("Call:" + ex.Callee)
		g.addEdge(parent, id)
		for _, a := range ex.Args {
			g.buildExpr(a, id)
		}
	}
}

// CountCallsNotIn returns the number of Call nodes whose callee is not a
// member of pure, and the number of assignment-like nodes (let/assign),
// used by the purity metric.
func (g *LogicalGraph) CountCallsNotIn(pure map[string]bool) (impureCalls, assignments int) {
	for _, n := range g.Nodes {
		if len(n.label) > 5 && n.label[:5] == "Call:" {
			callee := n.label[5:]
			if !pure[callee] {
				impureCalls++
			}
		}
		if n.label == "LetStmt" || n.label == "AssignStmt" {
			assignments++
		}
	}
	return
}
