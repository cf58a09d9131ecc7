// Package ast defines CAPS's abstract syntax tree.
//
// AST nodes are built once by the parser and mutated exactly once more by
// sema, which populates Expr.InferredType and may inject a `__last_error`
// local at the front of a process's Locals list. IR nodes (package ir) are
// produced from a frozen AST afterward and are never mutated.
package ast

import (
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/types"
)

// TypeRefKind distinguishes the three surface type-reference shapes.
type TypeRefKind int

const (
	TRName TypeRefKind = iota
	TRChannel
	TRResult
)

// TypeRef is a surface-syntax type reference, as written by the programmer.
type TypeRef struct {
	Kind     TypeRefKind
	Name     string // for TRName: "int" | "bool" | "real" | "text"
	Elem     *TypeRef
	ErrT     *TypeRef
	Capacity int
	Pos      diag.Pos
}

// Expr is any CAPS expression node.
type Expr interface {
	Position() diag.Pos
	InferredType() types.Type
	SetInferredType(types.Type)
}

type exprBase struct {
	Pos      diag.Pos
	Inferred types.Type
}

func (e *exprBase) Position() diag.Pos             { return e.Pos }
func (e *exprBase) InferredType() types.Type       { return e.Inferred }
func (e *exprBase) SetInferredType(t types.Type)   { e.Inferred = t }

type IntLit struct {
	exprBase
	Value int64
}

type RealLit struct {
	exprBase
	Value float64
}

type TextLit struct {
	exprBase
	Value string
}

type BoolLit struct {
	exprBase
	Value bool
}

type Ident struct {
	exprBase
	Name string
}

// Binary covers comparison, logical, and arithmetic binary operators:
// == != < <= > >= && || + - * /
type Binary struct {
	exprBase
	Op    string
	Left  Expr
	Right Expr
}

// Call is a function-call expression. The only built-in recognized by sema
// is `len(ch)`; any other name is a sema error.
type Call struct {
	exprBase
	Func string
	Args []Expr
}

// Try is the postfix '?' operator: Operand?
type Try struct {
	exprBase
	Operand Expr
}

func NewIdent(pos diag.Pos, name string) *Ident   { return &Ident{exprBase: exprBase{Pos: pos}, Name: name} }
func NewIntLit(pos diag.Pos, v int64) *IntLit     { return &IntLit{exprBase: exprBase{Pos: pos}, Value: v} }
func NewRealLit(pos diag.Pos, v float64) *RealLit { return &RealLit{exprBase: exprBase{Pos: pos}, Value: v} }
func NewTextLit(pos diag.Pos, v string) *TextLit  { return &TextLit{exprBase: exprBase{Pos: pos}, Value: v} }
func NewBoolLit(pos diag.Pos, v bool) *BoolLit    { return &BoolLit{exprBase: exprBase{Pos: pos}, Value: v} }

func NewBinary(pos diag.Pos, op string, l, r Expr) *Binary {
	return &Binary{exprBase: exprBase{Pos: pos}, Op: op, Left: l, Right: r}
}

func NewCall(pos diag.Pos, fn string, args []Expr) *Call {
	return &Call{exprBase: exprBase{Pos: pos}, Func: fn, Args: args}
}

func NewTry(pos diag.Pos, operand Expr) *Try {
	return &Try{exprBase: exprBase{Pos: pos}, Operand: operand}
}

// StmtKind distinguishes the three do-statement forms.
type StmtKind int

const (
	SLet StmtKind = iota
	SVar
	SAssign
)

// Stmt is a let/var/assign statement, used both as process locals
// initializers and inside DoAction.
type Stmt struct {
	Kind         StmtKind
	Pos          diag.Pos
	Name         string
	ExplicitType *TypeRef // optional, for let/var
	Value        Expr
}

// Action is one of DoAction, SendAction, ReceiveAction, TrySendAction,
// TryReceiveAction.
type Action interface {
	Position() diag.Pos
}

type actionBase struct {
	Pos diag.Pos
}

func (a actionBase) Position() diag.Pos { return a.Pos }

type DoAction struct {
	actionBase
	Stmt *Stmt
}

func NewDoAction(pos diag.Pos, stmt *Stmt) *DoAction {
	return &DoAction{actionBase: actionBase{Pos: pos}, Stmt: stmt}
}

type SendAction struct {
	actionBase
	Chan  string
	Value Expr
}

func NewSendAction(pos diag.Pos, ch string, val Expr) *SendAction {
	return &SendAction{actionBase: actionBase{Pos: pos}, Chan: ch, Value: val}
}

type ReceiveAction struct {
	actionBase
	Chan         string
	Target       string
	Declares     bool
	ExplicitType *TypeRef // only meaningful when Declares
}

func NewReceiveAction(pos diag.Pos, ch, target string, declares bool, ty *TypeRef) *ReceiveAction {
	return &ReceiveAction{actionBase: actionBase{Pos: pos}, Chan: ch, Target: target, Declares: declares, ExplicitType: ty}
}

type TrySendAction struct {
	actionBase
	Chan     string
	Value    Expr
	Out      string
	Declares bool
}

func NewTrySendAction(pos diag.Pos, ch string, val Expr, out string, declares bool) *TrySendAction {
	return &TrySendAction{actionBase: actionBase{Pos: pos}, Chan: ch, Value: val, Out: out, Declares: declares}
}

type TryReceiveAction struct {
	actionBase
	Chan     string
	Out      string
	Declares bool
}

func NewTryReceiveAction(pos diag.Pos, ch, out string, declares bool) *TryReceiveAction {
	return &TryReceiveAction{actionBase: actionBase{Pos: pos}, Chan: ch, Out: out, Declares: declares}
}

// Transition is either Unconditional or IfElse.
type Transition interface {
	Position() diag.Pos
}

type transitionBase struct {
	Pos diag.Pos
}

func (t transitionBase) Position() diag.Pos { return t.Pos }

type Unconditional struct {
	transitionBase
	To string
}

func NewUnconditional(pos diag.Pos, to string) *Unconditional {
	return &Unconditional{transitionBase: transitionBase{Pos: pos}, To: to}
}

type IfElse struct {
	transitionBase
	Cond        Expr
	ThenActions []Action
	ThenTo      string
	ElseActions []Action
	ElseTo      string
}

func NewIfElse(pos diag.Pos, cond Expr, thenActions []Action, thenTo string, elseActions []Action, elseTo string) *IfElse {
	return &IfElse{
		transitionBase: transitionBase{Pos: pos},
		Cond:           cond,
		ThenActions:    thenActions,
		ThenTo:         thenTo,
		ElseActions:    elseActions,
		ElseTo:         elseTo,
	}
}

// OnBlock is a state's action list plus its single transition. Terminal
// marks a state reached by any transition as immediately Finished —
// written `on StateName @terminal { ... }` (see DESIGN.md's "Open
// Questions resolved" for why: spec.md's §4.11.1 relies on a per-state
// terminal flag the surface grammar summary in §6 never names; the
// reference implementation left it permanently false/unset since its
// setter lived in a parser source file that wasn't retrievable).
type OnBlock struct {
	Pos        diag.Pos
	State      string
	Terminal   bool
	Actions    []Action
	Transition Transition
}

type Param struct {
	Name string
	Type *TypeRef
	Pos  diag.Pos
}

// Annotation is a `@name` or `@name(args...)` marker on a group.
type Annotation struct {
	Name string
	Args []string
	Pos  diag.Pos
}

func HasAnnotation(anns []Annotation, name string) bool {
	for _, a := range anns {
		if a.Name == name {
			return true
		}
	}
	return false
}

type ChannelDecl struct {
	Pos      diag.Pos
	Name     string
	ElemType *TypeRef
	Capacity int
}

type ProcessDecl struct {
	Pos         diag.Pos
	Name        string
	Annotations []Annotation
	Inputs      []Param
	Outputs     []Param
	States      []string
	Locals      []*Stmt
	OnBlocks    []*OnBlock
}

func (p *ProcessDecl) OnBlockFor(state string) *OnBlock {
	for _, ob := range p.OnBlocks {
		if ob.State == state {
			return ob
		}
	}
	return nil
}

func (p *ProcessDecl) HasState(name string) bool {
	for _, s := range p.States {
		if s == name {
			return true
		}
	}
	return false
}

func (p *ProcessDecl) HasLocal(name string) bool {
	for _, l := range p.Locals {
		if l.Name == name {
			return true
		}
	}
	return false
}

type Schedule struct {
	Pos    diag.Pos
	Steps  []string
	Repeat bool
}

type GroupDecl struct {
	Pos         diag.Pos
	Name        string
	Annotations []Annotation
	Channels    []*ChannelDecl
	Processes   []*ProcessDecl
	Schedule    *Schedule
}

func (g *GroupDecl) Channel(name string) *ChannelDecl {
	for _, c := range g.Channels {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (g *GroupDecl) Process(name string) *ProcessDecl {
	for _, p := range g.Processes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type Module struct {
	Pos  diag.Pos
	Name string
}

type Program struct {
	Module Module
	Groups []*GroupDecl
}
