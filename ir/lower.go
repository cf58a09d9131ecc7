package ir

import (
	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/types"
)

// Lower converts a sema-checked AST into typed IR, desugaring postfix '?'
// into TryUnwrapAssign. prog is assumed to have already passed sema.Check
// with no errors; Lower does not re-validate, it only restructures.
func Lower(prog *ast.Program) *Program {
	out := &Program{ModuleName: prog.Module.Name}
	for _, g := range prog.Groups {
		out.Groups = append(out.Groups, lowerGroup(g))
	}
	return out
}

func lowerGroup(g *ast.GroupDecl) *Group {
	out := &Group{Name: g.Name}
	for _, a := range g.Annotations {
		out.Annotations = append(out.Annotations, a.Name)
	}
	for _, ch := range g.Channels {
		out.Channels = append(out.Channels, ChannelDecl{
			Name:     ch.Name,
			Capacity: ch.Capacity,
			ElemType: typeFromRef(ch.ElemType),
		})
	}
	for _, p := range g.Processes {
		out.Processes = append(out.Processes, lowerProcess(p))
	}
	if g.Schedule != nil {
		out.Schedule = Schedule{Steps: g.Schedule.Steps, Repeat: g.Schedule.Repeat}
	}
	return out
}

func typeFromRef(t *ast.TypeRef) types.Type {
	if t == nil {
		return types.Simple(types.Unknown)
	}
	switch t.Kind {
	case ast.TRChannel:
		return types.Channel(typeFromRef(t.Elem), t.Capacity)
	case ast.TRResult:
		return types.Result(typeFromRef(t.Elem), typeFromRef(t.ErrT))
	default:
		return types.FromName(t.Name)
	}
}

func lowerProcess(p *ast.ProcessDecl) *Process {
	out := &Process{
		Name:   p.Name,
		States: map[string]*State{},
	}
	for _, in := range p.Inputs {
		out.InputNames = append(out.InputNames, in.Name)
	}
	for _, o := range p.Outputs {
		out.OutputNames = append(out.OutputNames, o.Name)
	}
	for _, l := range p.Locals {
		out.LocalNames = append(out.LocalNames, l.Name)
	}
	if len(p.States) > 0 {
		out.InitialState = p.States[0]
	}
	for _, ob := range p.OnBlocks {
		st := lowerOnBlock(ob)
		out.States[st.Name] = st
		out.StateOrder = append(out.StateOrder, st.Name)
	}
	return out
}

func lowerOnBlock(ob *ast.OnBlock) *State {
	st := &State{Name: ob.State, Terminal: ob.Terminal}
	for _, a := range ob.Actions {
		lowerAction(a, &st.Actions)
	}

	var tr Transition
	tr.Pos = ob.Transition.Position()
	switch t := ob.Transition.(type) {
	case *ast.Unconditional:
		tr.Kind = TKGoto
		tr.ToState = t.To
	case *ast.IfElse:
		tr.Kind = TKIfElse
		tr.Cond = lowerExpr(t.Cond)
		tr.ThenState = t.ThenTo
		tr.ElseState = t.ElseTo
		for _, a := range t.ThenActions {
			lowerAction(a, &tr.ThenActions)
		}
		for _, a := range t.ElseActions {
			lowerAction(a, &tr.ElseActions)
		}
	}
	st.Transition = tr
	return st
}

// lowerStmtAsActions desugars `do x = rr?` into TryUnwrapAssign(dst=x,
// operand=rr, errorState=__Error, lastError=__last_error); any other
// let/var/assign lowers to a plain Assign.
func lowerStmtAsActions(s *ast.Stmt, out *[]Action) {
	if s == nil {
		return
	}
	if t, ok := s.Value.(*ast.Try); ok {
		*out = append(*out, Action{
			Kind:             AKTryUnwrapAssign,
			Pos:              s.Pos,
			Dst:              s.Name,
			UnwrapResult:     lowerExpr(t.Operand),
			UnwrapErrorState: "__Error",
			UnwrapLastError:  "__last_error",
		})
		return
	}
	*out = append(*out, Action{
		Kind: AKAssign,
		Pos:  s.Pos,
		Dst:  s.Name,
		Expr: lowerExpr(s.Value),
	})
}

func lowerAction(a ast.Action, out *[]Action) {
	switch v := a.(type) {
	case *ast.DoAction:
		lowerStmtAsActions(v.Stmt, out)
	case *ast.SendAction:
		*out = append(*out, Action{Kind: AKSend, Pos: v.Pos, Chan: v.Chan, Expr: lowerExpr(v.Value)})
	case *ast.ReceiveAction:
		*out = append(*out, Action{Kind: AKReceive, Pos: v.Pos, Chan: v.Chan, Dst: v.Target})
	case *ast.TrySendAction:
		*out = append(*out, Action{Kind: AKTrySend, Pos: v.Pos, Chan: v.Chan, Expr: lowerExpr(v.Value), Dst: v.Out})
	case *ast.TryReceiveAction:
		*out = append(*out, Action{Kind: AKTryReceive, Pos: v.Pos, Chan: v.Chan, Dst: v.Out})
	}
}

func lowerExpr(e ast.Expr) Expr {
	var pos diag.Pos
	if e != nil {
		pos = e.Position()
	}
	switch v := e.(type) {
	case *ast.IntLit:
		return Expr{Kind: EKLitInt, Pos: pos, Type: v.InferredType(), LitInt: v.Value}
	case *ast.RealLit:
		return Expr{Kind: EKLitReal, Pos: pos, Type: v.InferredType(), LitReal: v.Value}
	case *ast.TextLit:
		return Expr{Kind: EKLitText, Pos: pos, Type: v.InferredType(), LitText: v.Value}
	case *ast.BoolLit:
		return Expr{Kind: EKLitBool, Pos: pos, Type: v.InferredType(), LitBool: v.Value}
	case *ast.Ident:
		return Expr{Kind: EKVar, Pos: pos, Type: v.InferredType(), Name: v.Name}
	case *ast.Binary:
		return Expr{
			Kind: EKBinOp,
			Pos:  pos,
			Type: v.InferredType(),
			Op:   v.Op,
			Args: []Expr{lowerExpr(v.Left), lowerExpr(v.Right)},
		}
	case *ast.Call:
		// only `len(chan)` survives sema; the channel name is the sole arg.
		name := ""
		if len(v.Args) == 1 {
			if id, ok := v.Args[0].(*ast.Ident); ok {
				name = id.Name
			}
		}
		return Expr{Kind: EKLenChannel, Pos: pos, Type: v.InferredType(), Name: name}
	case *ast.Try:
		// '?' never survives into an IR Expr directly — lowerStmtAsActions
		// intercepts it at the statement level and turns it into
		// TryUnwrapAssign before lowerExpr would ever see the Try node.
		return lowerExpr(v.Operand)
	}
	return Expr{Kind: EKLitInt, Pos: pos}
}
