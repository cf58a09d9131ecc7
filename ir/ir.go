// Package ir defines CAPS's typed intermediate representation: the shape
// that survives from source syntax to execution, independent of how the
// program was written. Lowering from ast to ir is one-way and never
// revisited at runtime.
package ir

import (
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/types"
)

type ExprKind int

const (
	EKLitInt ExprKind = iota
	EKLitBool
	EKLitReal
	EKLitText
	EKVar
	EKBinOp
	EKLenChannel
)

// Expr is a flattened expression node: one struct, tag-dispatched, mirroring
// the variant-by-enum shape of the original IR rather than a Go interface —
// IR nodes are built once by Lower and then only ever read, so there is no
// need for per-kind method dispatch the way ast.Expr has.
type Expr struct {
	Kind ExprKind
	Pos  diag.Pos
	Type types.Type

	Op   string // for EKBinOp: == != < <= > >= && || + - * /
	Name string // for EKVar / EKLenChannel

	LitInt  int64
	LitBool bool
	LitReal float64
	LitText string

	Args []Expr // EKBinOp: exactly 2
}

type ActionKind int

const (
	AKAssign ActionKind = iota
	AKSend
	AKReceive
	AKTrySend
	AKTryReceive
	AKTryUnwrapAssign
)

// Action is one lowered action. Only the fields relevant to Kind are set.
type Action struct {
	Kind ActionKind
	Pos  diag.Pos

	Dst  string // Assign/Receive/TrySend/TryReceive/TryUnwrapAssign destination var
	Expr Expr   // Assign value, Send value, or TrySend value
	Chan string // Send/Receive/TrySend/TryReceive channel name

	// TryUnwrapAssign: dst = operand? desugars into this. If operand is an
	// error Result, set locals[LastError] and transition to ErrorState
	// instead of falling through to the normal transition.
	UnwrapResult    Expr
	UnwrapErrorState string
	UnwrapLastError  string
}

type TransitionKind int

const (
	TKGoto TransitionKind = iota
	TKIfElse
)

type Transition struct {
	Kind TransitionKind
	Pos  diag.Pos

	Cond Expr

	ThenState   string
	ElseState   string
	ThenActions []Action
	ElseActions []Action

	ToState string // TKGoto
}

type State struct {
	Name       string
	Terminal   bool
	Actions    []Action
	Transition Transition
}

type Process struct {
	Name         string
	InitialState string
	States       map[string]*State
	StateOrder   []string // deterministic iteration order, states declared left-to-right
	LocalNames   []string
	OutputNames  []string
	InputNames   []string
}

func (p *Process) State(name string) *State {
	return p.States[name]
}

type ChannelDecl struct {
	Name     string
	Capacity int
	ElemType types.Type
}

type Schedule struct {
	Steps  []string
	Repeat bool
}

type Group struct {
	Name        string
	Annotations []string
	Channels    []ChannelDecl
	Processes   []*Process
	Schedule    Schedule
}

func (g *Group) Channel(name string) *ChannelDecl {
	for i := range g.Channels {
		if g.Channels[i].Name == name {
			return &g.Channels[i]
		}
	}
	return nil
}

func (g *Group) Process(name string) *Process {
	for _, p := range g.Processes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (g *Group) HasAnnotation(name string) bool {
	for _, a := range g.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

type Program struct {
	ModuleName string
	Groups     []*Group
}
