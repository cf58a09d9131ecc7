// Package sema type-checks a parsed CAPS program, validates process FSMs
// and schedules, enforces the `?` discipline, and injects the implicit
// `__last_error` local a process acquires the first time it uses `?`.
//
// Errors never abort a check pass — every phase is handed the same *diag.Bag
// and keeps going, the same accumulate-and-continue discipline diag.Bag
// documents for the rest of the front end.
package sema

import (
	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/types"
)

// groupEnv is the per-group symbol table consulted while checking each of
// its processes: channel types and the process declarations by name.
type groupEnv struct {
	channels  map[string]types.Type
	processes map[string]*ast.ProcessDecl
}

// Checker runs semantic analysis over a *ast.Program, recording diagnostics.
type Checker struct {
	diags *diag.Bag
}

func NewChecker(diags *diag.Bag) *Checker {
	return &Checker{diags: diags}
}

// Check validates prog in place: it populates ast.Expr.InferredType and may
// prepend a `__last_error` local to any process that uses `?`.
func Check(prog *ast.Program, diags *diag.Bag) {
	c := NewChecker(diags)
	for _, g := range prog.Groups {
		c.checkGroup(g)
	}
}

func (c *Checker) errorf(pos diag.Pos, format string, args ...any) {
	c.diags.Errorf(pos, format, args...)
}

func (c *Checker) checkGroup(g *ast.GroupDecl) {
	env := &groupEnv{
		channels:  map[string]types.Type{},
		processes: map[string]*ast.ProcessDecl{},
	}
	for _, ch := range g.Channels {
		env.channels[ch.Name] = types.Channel(typeFromRef(ch.ElemType), ch.Capacity)
	}
	for _, p := range g.Processes {
		if _, dup := env.processes[p.Name]; dup {
			c.errorf(p.Pos, "duplicate process name: %s", p.Name)
			continue
		}
		env.processes[p.Name] = p
	}

	if g.Schedule != nil {
		for _, step := range g.Schedule.Steps {
			if _, ok := env.processes[step]; !ok {
				c.errorf(g.Schedule.Pos, "schedule step refers to unknown process: %s", step)
			}
		}
	} else {
		c.errorf(g.Pos, "group %s has no schedule", g.Name)
	}

	for _, p := range g.Processes {
		c.checkProcess(g, env, p)
	}

	if ast.HasAnnotation(g.Annotations, "pipeline_safe") {
		CheckPipelineSafe(g, c.diags)
	}
}

// typeFromRef converts a surface TypeRef to a types.Type.
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

func exprContainsTry(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.Try:
		return true
	case *ast.Binary:
		return exprContainsTry(v.Left) || exprContainsTry(v.Right)
	case *ast.Call:
		for _, a := range v.Args {
			if exprContainsTry(a) {
				return true
			}
		}
	}
	return false
}

func stmtContainsTry(s *ast.Stmt) bool {
	if s == nil {
		return false
	}
	return exprContainsTry(s.Value)
}

func actionContainsTry(a ast.Action) bool {
	switch v := a.(type) {
	case *ast.DoAction:
		return stmtContainsTry(v.Stmt)
	case *ast.SendAction:
		return exprContainsTry(v.Value)
	case *ast.TrySendAction:
		return exprContainsTry(v.Value)
	}
	return false
}

// tryUsageIsAllowed reports whether s's RHS is directly `expr?`, the only
// legal surface position for the postfix operator.
func tryUsageIsAllowed(s *ast.Stmt) bool {
	if s == nil {
		return false
	}
	_, ok := s.Value.(*ast.Try)
	return ok
}

func (c *Checker) checkActionTryDiscipline(a ast.Action) {
	doa, ok := a.(*ast.DoAction)
	if !ok {
		return
	}
	if stmtContainsTry(doa.Stmt) && !tryUsageIsAllowed(doa.Stmt) {
		c.errorf(doa.Pos, "postfix '?' is only allowed as the RHS of let/var/assign (do x = expr?)")
	}
}

func (c *Checker) checkProcess(g *ast.GroupDecl, env *groupEnv, p *ast.ProcessDecl) {
	realtimeSafe := ast.HasAnnotation(g.Annotations, "realtimesafe")

	usesTry := false
	for _, local := range p.Locals {
		if stmtContainsTry(local) {
			usesTry = true
			c.errorf(local.Pos, "postfix '?' is only allowed inside 'do' actions (use: on S { do x = expr? ... })")
		}
	}
	for _, ob := range p.OnBlocks {
		for _, a := range ob.Actions {
			if actionContainsTry(a) {
				usesTry = true
				c.checkActionTryDiscipline(a)
			}
		}
		if ie, ok := ob.Transition.(*ast.IfElse); ok {
			if exprContainsTry(ie.Cond) {
				usesTry = true
				c.errorf(ie.Pos, "postfix '?' is not allowed in transition conditions")
			}
			for _, a := range ie.ThenActions {
				if actionContainsTry(a) {
					usesTry = true
					c.checkActionTryDiscipline(a)
				}
			}
			for _, a := range ie.ElseActions {
				if actionContainsTry(a) {
					usesTry = true
					c.checkActionTryDiscipline(a)
				}
			}
		}
	}

	if usesTry {
		if !p.HasState("__Error") {
			c.errorf(p.Pos, "process %s uses '?' but is missing state '__Error'", p.Name)
		}
		if p.OnBlockFor("__Error") == nil {
			c.errorf(p.Pos, "process %s uses '?' but is missing 'on __Error { ... }'", p.Name)
		}
		if !p.HasLocal("__last_error") {
			injected := &ast.Stmt{
				Kind:         ast.SVar,
				Pos:          p.Pos,
				Name:         "__last_error",
				ExplicitType: &ast.TypeRef{Kind: ast.TRName, Name: "text", Pos: p.Pos},
				Value:        ast.NewTextLit(p.Pos, ""),
			}
			p.Locals = append([]*ast.Stmt{injected}, p.Locals...)
		}
	}

	locals := map[string]types.Type{}
	for _, in := range p.Inputs {
		locals[in.Name] = typeFromRef(in.Type)
	}
	for _, out := range p.Outputs {
		locals[out.Name] = typeFromRef(out.Type)
	}

	for _, local := range p.Locals {
		rhs := c.checkExpr(env, locals, local.Value)
		declared := rhs
		if local.ExplicitType != nil {
			declared = typeFromRef(local.ExplicitType)
			if !types.Equal(declared, rhs) {
				c.errorf(local.Pos, "type mismatch in local init %q: expected %s got %s", local.Name, declared, rhs)
			}
		}
		locals[local.Name] = declared
	}

	declaredStates := map[string]bool{}
	for _, s := range p.States {
		declaredStates[s] = true
	}
	hasOn := map[string]bool{}
	for _, ob := range p.OnBlocks {
		hasOn[ob.State] = true
	}
	for s := range declaredStates {
		if !hasOn[s] {
			c.errorf(p.Pos, "state %q declared but missing 'on %s { ... }'", s, s)
		}
	}
	checkStateExists := func(pos diag.Pos, name string) {
		if !declaredStates[name] {
			c.errorf(pos, "transition target state not declared: %s", name)
		}
	}

	for _, ob := range p.OnBlocks {
		// Each on-block gets its own scope snapshot so a var declared in
		// one state's `do` doesn't leak visibility into another's.
		scope := cloneScope(locals)
		for _, a := range ob.Actions {
			c.checkAction(env, scope, a, realtimeSafe)
		}
		switch tr := ob.Transition.(type) {
		case *ast.Unconditional:
			checkStateExists(tr.Pos, tr.To)
		case *ast.IfElse:
			cty := c.checkExpr(env, scope, tr.Cond)
			if cty.Kind != types.Bool {
				c.errorf(tr.Pos, "transition condition must be bool, got %s", cty)
			}
			thenScope := cloneScope(scope)
			for _, a := range tr.ThenActions {
				c.checkAction(env, thenScope, a, realtimeSafe)
			}
			elseScope := cloneScope(scope)
			for _, a := range tr.ElseActions {
				c.checkAction(env, elseScope, a, realtimeSafe)
			}
			checkStateExists(tr.Pos, tr.ThenTo)
			checkStateExists(tr.Pos, tr.ElseTo)
		case nil:
			c.errorf(ob.Pos, "on-block for state %q has no transition", ob.State)
		}
	}
}

func cloneScope(m map[string]types.Type) map[string]types.Type {
	out := make(map[string]types.Type, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (c *Checker) checkExpr(env *groupEnv, locals map[string]types.Type, e ast.Expr) types.Type {
	switch v := e.(type) {
	case *ast.Ident:
		if t, ok := locals[v.Name]; ok {
			v.SetInferredType(t)
			return t
		}
		c.errorf(v.Pos, "unknown identifier: %s", v.Name)
		v.SetInferredType(types.Simple(types.Unknown))
		return types.Simple(types.Unknown)
	case *ast.IntLit:
		v.SetInferredType(types.Simple(types.Int))
		return types.Simple(types.Int)
	case *ast.RealLit:
		v.SetInferredType(types.Simple(types.Real))
		return types.Simple(types.Real)
	case *ast.TextLit:
		v.SetInferredType(types.Simple(types.Text))
		return types.Simple(types.Text)
	case *ast.BoolLit:
		v.SetInferredType(types.Simple(types.Bool))
		return types.Simple(types.Bool)
	case *ast.Binary:
		a := c.checkExpr(env, locals, v.Left)
		b := c.checkExpr(env, locals, v.Right)
		switch v.Op {
		case "==", "!=", "<", "<=", ">", ">=":
			v.SetInferredType(types.Simple(types.Bool))
			return types.Simple(types.Bool)
		case "&&", "||":
			if a.Kind != types.Bool || b.Kind != types.Bool {
				c.errorf(v.Pos, "logical operator %q requires bool operands", v.Op)
			}
			v.SetInferredType(types.Simple(types.Bool))
			return types.Simple(types.Bool)
		default: // + - * /
			if a.Kind == types.Int && b.Kind == types.Int {
				v.SetInferredType(types.Simple(types.Int))
				return types.Simple(types.Int)
			}
			if a.Kind == types.Real && b.Kind == types.Real {
				v.SetInferredType(types.Simple(types.Real))
				return types.Simple(types.Real)
			}
			c.errorf(v.Pos, "unsupported binary op types: %s %s %s", a, v.Op, b)
			v.SetInferredType(types.Simple(types.Unknown))
			return types.Simple(types.Unknown)
		}
	case *ast.Call:
		if v.Func != "len" {
			c.errorf(v.Pos, "unknown function: %s", v.Func)
			v.SetInferredType(types.Simple(types.Unknown))
			return types.Simple(types.Unknown)
		}
		if len(v.Args) != 1 {
			c.errorf(v.Pos, "len expects 1 argument")
			v.SetInferredType(types.Simple(types.Unknown))
			return types.Simple(types.Unknown)
		}
		id, ok := v.Args[0].(*ast.Ident)
		var argT types.Type
		if ok {
			if ct, found := env.channels[id.Name]; found {
				argT = ct
				id.SetInferredType(ct)
			} else {
				argT = c.checkExpr(env, locals, v.Args[0])
			}
		} else {
			argT = c.checkExpr(env, locals, v.Args[0])
		}
		if argT.Kind != types.ChannelT {
			c.errorf(v.Pos, "len argument must be a channel")
		}
		v.SetInferredType(types.Simple(types.Int))
		return types.Simple(types.Int)
	case *ast.Try:
		r := c.checkExpr(env, locals, v.Operand)
		if r.Kind != types.ResultT {
			c.errorf(v.Pos, "postfix '?' operand must be Result<T, text>")
			v.SetInferredType(types.Simple(types.Unknown))
			return types.Simple(types.Unknown)
		}
		if r.Err.Kind != types.Text {
			c.errorf(v.Pos, "postfix '?' requires Result<T, text> (error type must be text for __last_error)")
		}
		v.SetInferredType(*r.Elem)
		return *r.Elem
	}
	return types.Simple(types.Unknown)
}

func (c *Checker) checkAction(env *groupEnv, locals map[string]types.Type, a ast.Action, realtimeSafe bool) {
	switch v := a.(type) {
	case *ast.DoAction:
		c.checkDoStmt(env, locals, v.Stmt)
	case *ast.SendAction:
		if realtimeSafe {
			c.errorf(v.Pos, "@realtimesafe groups may not use blocking send (use try_send)")
		}
		c.checkSend(env, locals, v.Chan, v.Value, v.Pos)
	case *ast.ReceiveAction:
		if realtimeSafe {
			c.errorf(v.Pos, "@realtimesafe groups may not use blocking receive (use try_receive)")
		}
		c.checkReceive(env, locals, v)
	case *ast.TrySendAction:
		c.checkTrySend(env, locals, v)
	case *ast.TryReceiveAction:
		c.checkTryReceive(env, locals, v)
	}
}

func (c *Checker) checkDoStmt(env *groupEnv, locals map[string]types.Type, s *ast.Stmt) {
	if s == nil {
		return
	}
	switch s.Kind {
	case ast.SLet, ast.SVar:
		rhs := c.checkExpr(env, locals, s.Value)
		declared := rhs
		if s.ExplicitType != nil {
			declared = typeFromRef(s.ExplicitType)
			if !types.Equal(declared, rhs) {
				c.errorf(s.Pos, "type mismatch in do local %q", s.Name)
			}
		}
		locals[s.Name] = declared
	case ast.SAssign:
		if _, ok := locals[s.Name]; !ok {
			c.errorf(s.Pos, "assign to unknown local: %s", s.Name)
		}
		rhs := c.checkExpr(env, locals, s.Value)
		if lhs, ok := locals[s.Name]; ok && !types.Equal(lhs, rhs) {
			c.errorf(s.Pos, "type mismatch in assign %q: expected %s got %s", s.Name, lhs, rhs)
		}
	}
}

func (c *Checker) checkSend(env *groupEnv, locals map[string]types.Type, chanName string, val ast.Expr, pos diag.Pos) {
	ch, ok := env.channels[chanName]
	if !ok {
		c.errorf(pos, "unknown channel: %s", chanName)
		return
	}
	ex := c.checkExpr(env, locals, val)
	if !types.Equal(*ch.Elem, ex) {
		c.errorf(pos, "send type mismatch: channel %s expects %s but expr is %s", chanName, ch.Elem, ex)
	}
}

func (c *Checker) checkReceive(env *groupEnv, locals map[string]types.Type, r *ast.ReceiveAction) {
	ch, ok := env.channels[r.Chan]
	if !ok {
		c.errorf(r.Pos, "unknown channel: %s", r.Chan)
		return
	}
	elem := *ch.Elem
	if r.Declares {
		if r.ExplicitType == nil {
			c.errorf(r.Pos, "receive var requires an explicit type")
			return
		}
		declared := typeFromRef(r.ExplicitType)
		if !types.Equal(declared, elem) {
			c.errorf(r.Pos, "receive declared type mismatch: channel carries %s, declared %s", elem, declared)
		}
		locals[r.Target] = declared
		return
	}
	if t, ok := locals[r.Target]; !ok {
		c.errorf(r.Pos, "receive target not declared: %s", r.Target)
	} else if !types.Equal(t, elem) {
		c.errorf(r.Pos, "receive target type mismatch: %s is %s, channel carries %s", r.Target, t, elem)
	}
}

func (c *Checker) checkTrySend(env *groupEnv, locals map[string]types.Type, t *ast.TrySendAction) {
	ch, ok := env.channels[t.Chan]
	if !ok {
		c.errorf(t.Pos, "unknown channel: %s", t.Chan)
		return
	}
	ex := c.checkExpr(env, locals, t.Value)
	if !types.Equal(*ch.Elem, ex) {
		c.errorf(t.Pos, "try_send expr type mismatch")
	}
	expect := types.Result(types.Simple(types.Bool), types.Simple(types.Text))
	if existing, ok := locals[t.Out]; !ok {
		locals[t.Out] = expect
	} else if !types.Equal(existing, expect) {
		c.errorf(t.Pos, "try_send out var must be Result<bool, text>")
	}
}

func (c *Checker) checkTryReceive(env *groupEnv, locals map[string]types.Type, t *ast.TryReceiveAction) {
	ch, ok := env.channels[t.Chan]
	if !ok {
		c.errorf(t.Pos, "unknown channel: %s", t.Chan)
		return
	}
	expect := types.Result(*ch.Elem, types.Simple(types.Text))
	if existing, ok := locals[t.Out]; !ok {
		locals[t.Out] = expect
	} else if !types.Equal(existing, expect) {
		c.errorf(t.Pos, "try_receive out var must match Result<%s, text> for channel %s", ch.Elem, t.Chan)
	}
}
