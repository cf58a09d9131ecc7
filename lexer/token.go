package lexer

import "github.com/capslang/caps/diag"

// Kind identifies the lexical category of a Token.
type Kind int

const (
	EOF Kind = iota
	Error

	Ident
	IntLit
	RealLit
	TextLit

	// keywords
	KwModule
	KwGroup
	KwProcess
	KwState
	KwStates
	KwOn
	KwDo
	KwLet
	KwVar
	KwChannel
	KwSchedule
	KwStep
	KwRepeat
	KwIf
	KwElse
	KwSend
	KwReceive
	KwTrySend
	KwTryReceive
	KwInputs
	KwOutputs
	KwTrue
	KwFalse
	KwTerminal

	// punctuation / operators
	LParen
	RParen
	LBrace
	RBrace
	LAngle
	RAngle
	Colon
	Comma
	Semicolon
	Dot
	At
	Question
	Arrow  // ->
	LArrow // <-
	Assign
	EqEq
	NotEq
	LtEq
	GtEq
	AndAnd
	OrOr
	Bang
	Plus
	Minus
	Star
	Slash
)

var keywords = map[string]Kind{
	"module":       KwModule,
	"group":        KwGroup,
	"process":      KwProcess,
	"state":        KwState,
	"states":       KwStates,
	"on":           KwOn,
	"do":           KwDo,
	"let":          KwLet,
	"var":          KwVar,
	"channel":      KwChannel,
	"schedule":     KwSchedule,
	"step":         KwStep,
	"repeat":       KwRepeat,
	"if":           KwIf,
	"else":         KwElse,
	"send":         KwSend,
	"receive":      KwReceive,
	"try_send":     KwTrySend,
	"try_receive":  KwTryReceive,
	"inputs":       KwInputs,
	"outputs":      KwOutputs,
	"true":         KwTrue,
	"false":        KwFalse,
	"terminal":     KwTerminal,
}

// Token is a single lexical unit with its source position.
type Token struct {
	Kind Kind
	Text string
	Pos  diag.Pos
}

func (t Token) String() string {
	return t.Text
}
