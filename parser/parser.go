// Package parser builds a CAPS ast.Program from a token stream.
//
// It is a straight recursive-descent parser with a small Pratt-style
// expression core, in the manner of other_examples' hand-written assembler
// parser: one function per grammar production, no parser-combinator or
// generated-parser library, because nothing in the retrieval pack reaches
// for one at this grammar size.
package parser

import (
	"strconv"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
	"github.com/capslang/caps/lexer"
)

// Parser consumes a *lexer.Lexer and produces an *ast.Program, recording
// syntax errors into diags rather than stopping at the first one.
type Parser struct {
	lex   *lexer.Lexer
	diags *diag.Bag
}

func New(lex *lexer.Lexer, diags *diag.Bag) *Parser {
	return &Parser{lex: lex, diags: diags}
}

// Parse parses a complete program. On a syntax error it records a
// diagnostic, skips to a recovery point, and continues, so that a single
// file can report more than one syntax error per run.
func Parse(src string, diags *diag.Bag) *ast.Program {
	p := New(lexer.New(src, diags), diags)
	return p.parseProgram()
}

func (p *Parser) errorf(pos diag.Pos, format string, args ...any) {
	p.diags.Errorf(pos, format, args...)
}

func (p *Parser) peek() lexer.Token { return p.lex.Peek() }
func (p *Parser) next() lexer.Token { return p.lex.Next() }

func (p *Parser) at(k lexer.Kind) bool { return p.peek().Kind == k }

func (p *Parser) expect(k lexer.Kind, what string) lexer.Token {
	t := p.peek()
	if t.Kind != k {
		p.errorf(t.Pos, "expected %s, got %q", what, t.Text)
		return t
	}
	return p.next()
}

// skipTo advances until it sees one of the given kinds or EOF, used to
// resynchronize after a syntax error.
func (p *Parser) skipTo(kinds ...lexer.Kind) {
	for {
		t := p.peek()
		if t.Kind == lexer.EOF {
			return
		}
		for _, k := range kinds {
			if t.Kind == k {
				return
			}
		}
		p.next()
	}
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}

	modTok := p.expect(lexer.KwModule, "'module'")
	name := p.expect(lexer.Ident, "module name")
	p.expect(lexer.Semicolon, "';'")
	prog.Module = ast.Module{Pos: modTok.Pos, Name: name.Text}

	for p.at(lexer.KwGroup) {
		prog.Groups = append(prog.Groups, p.parseGroup())
	}
	if !p.at(lexer.EOF) {
		t := p.peek()
		p.errorf(t.Pos, "expected 'group' or end of file, got %q", t.Text)
	}
	return prog
}

func (p *Parser) parseAnnotations() []ast.Annotation {
	var anns []ast.Annotation
	for p.at(lexer.At) {
		at := p.next()
		var name lexer.Token
		if p.at(lexer.KwTerminal) {
			name = p.next()
		} else {
			name = p.expect(lexer.Ident, "annotation name")
		}
		ann := ast.Annotation{Name: name.Text, Pos: at.Pos}
		if p.at(lexer.LParen) {
			p.next()
			for !p.at(lexer.RParen) && !p.at(lexer.EOF) {
				arg := p.next()
				ann.Args = append(ann.Args, arg.Text)
				if p.at(lexer.Comma) {
					p.next()
				}
			}
			p.expect(lexer.RParen, "')'")
		}
		anns = append(anns, ann)
	}
	return anns
}

func (p *Parser) parseGroup() *ast.GroupDecl {
	kw := p.expect(lexer.KwGroup, "'group'")
	name := p.expect(lexer.Ident, "group name")
	anns := p.parseAnnotations()
	g := &ast.GroupDecl{Pos: kw.Pos, Name: name.Text, Annotations: anns}

	p.expect(lexer.LBrace, "'{'")
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		switch p.peek().Kind {
		case lexer.KwChannel:
			g.Channels = append(g.Channels, p.parseChannelDecl())
		case lexer.KwProcess:
			g.Processes = append(g.Processes, p.parseProcessDecl())
		case lexer.KwSchedule:
			g.Schedule = p.parseSchedule()
		default:
			t := p.peek()
			p.errorf(t.Pos, "expected 'channel', 'process', or 'schedule' inside group, got %q", t.Text)
			p.skipTo(lexer.KwChannel, lexer.KwProcess, lexer.KwSchedule, lexer.RBrace)
		}
	}
	p.expect(lexer.RBrace, "'}'")
	return g
}

func (p *Parser) parseChannelDecl() *ast.ChannelDecl {
	kw := p.expect(lexer.KwChannel, "'channel'")
	name := p.expect(lexer.Ident, "channel name")
	p.expect(lexer.Colon, "':'")
	elem := p.parseTypeRef()
	p.expect(lexer.Comma, "','")
	cap := p.expect(lexer.IntLit, "capacity integer")
	n, err := strconv.ParseInt(cap.Text, 10, 64)
	if err != nil {
		p.errorf(cap.Pos, "invalid channel capacity %q", cap.Text)
	}
	p.expect(lexer.Semicolon, "';'")
	return &ast.ChannelDecl{Pos: kw.Pos, Name: name.Text, ElemType: elem, Capacity: int(n)}
}

// parseTypeRef parses int | bool | real | text | Channel<T; N> | Result<T, E>
func (p *Parser) parseTypeRef() *ast.TypeRef {
	t := p.peek()
	switch t.Text {
	case "Channel":
		p.next()
		p.expect(lexer.LAngle, "'<'")
		elem := p.parseTypeRef()
		p.expect(lexer.Semicolon, "';'")
		n := p.expect(lexer.IntLit, "capacity integer")
		cap, _ := strconv.ParseInt(n.Text, 10, 64)
		p.expect(lexer.RAngle, "'>'")
		return &ast.TypeRef{Kind: ast.TRChannel, Elem: elem, Capacity: int(cap), Pos: t.Pos}
	case "Result":
		p.next()
		p.expect(lexer.LAngle, "'<'")
		ok := p.parseTypeRef()
		p.expect(lexer.Comma, "','")
		errT := p.parseTypeRef()
		p.expect(lexer.RAngle, "'>'")
		return &ast.TypeRef{Kind: ast.TRResult, Elem: ok, ErrT: errT, Pos: t.Pos}
	default:
		id := p.expect(lexer.Ident, "type name")
		return &ast.TypeRef{Kind: ast.TRName, Name: id.Text, Pos: id.Pos}
	}
}

func (p *Parser) parseParamList() []ast.Param {
	var params []ast.Param
	if p.at(lexer.Semicolon) {
		return params
	}
	for {
		name := p.expect(lexer.Ident, "parameter name")
		p.expect(lexer.Colon, "':'")
		ty := p.parseTypeRef()
		params = append(params, ast.Param{Name: name.Text, Type: ty, Pos: name.Pos})
		if p.at(lexer.Comma) {
			p.next()
			continue
		}
		break
	}
	return params
}

func (p *Parser) parseProcessDecl() *ast.ProcessDecl {
	kw := p.expect(lexer.KwProcess, "'process'")
	name := p.expect(lexer.Ident, "process name")
	anns := p.parseAnnotations()
	proc := &ast.ProcessDecl{Pos: kw.Pos, Name: name.Text, Annotations: anns}

	p.expect(lexer.LBrace, "'{'")
	if p.at(lexer.KwInputs) {
		p.next()
		p.expect(lexer.Colon, "':'")
		proc.Inputs = p.parseParamList()
		p.expect(lexer.Semicolon, "';'")
	}
	if p.at(lexer.KwOutputs) {
		p.next()
		p.expect(lexer.Colon, "':'")
		proc.Outputs = p.parseParamList()
		p.expect(lexer.Semicolon, "';'")
	}
	p.expect(lexer.KwStates, "'states'")
	p.expect(lexer.Colon, "':'")
	proc.States = p.parseIdentList()
	p.expect(lexer.Semicolon, "';'")

	for p.at(lexer.KwLet) || p.at(lexer.KwVar) {
		proc.Locals = append(proc.Locals, p.parseLetOrVar())
		p.expect(lexer.Semicolon, "';'")
	}

	for p.at(lexer.KwOn) {
		proc.OnBlocks = append(proc.OnBlocks, p.parseOnBlock())
	}
	p.expect(lexer.RBrace, "'}'")
	return proc
}

func (p *Parser) parseIdentList() []string {
	var names []string
	for {
		id := p.expect(lexer.Ident, "identifier")
		names = append(names, id.Text)
		if p.at(lexer.Comma) {
			p.next()
			continue
		}
		break
	}
	return names
}

func (p *Parser) parseLetOrVar() *ast.Stmt {
	kw := p.next() // 'let' or 'var'
	kind := ast.SLet
	if kw.Kind == lexer.KwVar {
		kind = ast.SVar
	}
	name := p.expect(lexer.Ident, "name")
	var ty *ast.TypeRef
	if p.at(lexer.Colon) {
		p.next()
		ty = p.parseTypeRef()
	}
	p.expect(lexer.Assign, "'='")
	val := p.parseExpr()
	return &ast.Stmt{Kind: kind, Pos: kw.Pos, Name: name.Text, ExplicitType: ty, Value: val}
}

func (p *Parser) parseOnBlock() *ast.OnBlock {
	kw := p.expect(lexer.KwOn, "'on'")
	state := p.expect(lexer.Ident, "state name")
	ob := &ast.OnBlock{Pos: kw.Pos, State: state.Text}
	for _, a := range p.parseAnnotations() {
		if a.Name == "terminal" {
			ob.Terminal = true
		}
	}
	p.expect(lexer.LBrace, "'{'")
	ob.Actions, ob.Transition = p.parseActionsAndTransition()
	p.expect(lexer.RBrace, "'}'")
	return ob
}

// parseActionsAndTransition parses zero or more actions followed by
// exactly one transition, which spec.md requires to end every on-block
// (and every branch of an if/else transition).
func (p *Parser) parseActionsAndTransition() ([]ast.Action, ast.Transition) {
	var actions []ast.Action
	for {
		switch p.peek().Kind {
		case lexer.KwDo:
			actions = append(actions, p.parseDoAction())
		case lexer.KwSend:
			actions = append(actions, p.parseSendAction())
		case lexer.KwReceive:
			actions = append(actions, p.parseReceiveAction())
		case lexer.KwTrySend:
			actions = append(actions, p.parseTrySendAction())
		case lexer.KwTryReceive:
			actions = append(actions, p.parseTryReceiveAction())
		case lexer.Arrow, lexer.KwIf:
			return actions, p.parseTransition()
		default:
			t := p.peek()
			p.errorf(t.Pos, "expected an action or transition, got %q", t.Text)
			p.skipTo(lexer.RBrace)
			return actions, nil
		}
	}
}

func (p *Parser) parseDoAction() ast.Action {
	kw := p.expect(lexer.KwDo, "'do'")
	var stmt *ast.Stmt
	switch p.peek().Kind {
	case lexer.KwLet, lexer.KwVar:
		stmt = p.parseLetOrVar()
	default:
		name := p.expect(lexer.Ident, "identifier")
		p.expect(lexer.Assign, "'='")
		val := p.parseExpr()
		stmt = &ast.Stmt{Kind: ast.SAssign, Pos: name.Pos, Name: name.Text, Value: val}
	}
	p.expect(lexer.Semicolon, "';'")
	return ast.NewDoAction(kw.Pos, stmt)
}

func (p *Parser) parseSendAction() ast.Action {
	kw := p.expect(lexer.KwSend, "'send'")
	ch := p.expect(lexer.Ident, "channel name")
	p.expect(lexer.LArrow, "'<-'")
	val := p.parseExpr()
	p.expect(lexer.Semicolon, "';'")
	return ast.NewSendAction(kw.Pos, ch.Text, val)
}

// parseReceiveTarget parses the common `-> x` / `-> let x` / `-> let x: T`
// tail shared by receive, try_send, and try_receive.
func (p *Parser) parseReceiveTarget() (name string, declares bool, ty *ast.TypeRef) {
	p.expect(lexer.Arrow, "'->'")
	if p.at(lexer.KwLet) {
		p.next()
		declares = true
		id := p.expect(lexer.Ident, "variable name")
		name = id.Text
		if p.at(lexer.Colon) {
			p.next()
			ty = p.parseTypeRef()
		}
		return
	}
	id := p.expect(lexer.Ident, "variable name")
	return id.Text, false, nil
}

func (p *Parser) parseReceiveAction() ast.Action {
	kw := p.expect(lexer.KwReceive, "'receive'")
	ch := p.expect(lexer.Ident, "channel name")
	target, declares, ty := p.parseReceiveTarget()
	p.expect(lexer.Semicolon, "';'")
	return ast.NewReceiveAction(kw.Pos, ch.Text, target, declares, ty)
}

func (p *Parser) parseTrySendAction() ast.Action {
	kw := p.expect(lexer.KwTrySend, "'try_send'")
	ch := p.expect(lexer.Ident, "channel name")
	p.expect(lexer.LArrow, "'<-'")
	val := p.parseExpr()
	out, declares, _ := p.parseReceiveTarget()
	p.expect(lexer.Semicolon, "';'")
	return ast.NewTrySendAction(kw.Pos, ch.Text, val, out, declares)
}

func (p *Parser) parseTryReceiveAction() ast.Action {
	kw := p.expect(lexer.KwTryReceive, "'try_receive'")
	ch := p.expect(lexer.Ident, "channel name")
	out, declares, _ := p.parseReceiveTarget()
	p.expect(lexer.Semicolon, "';'")
	return ast.NewTryReceiveAction(kw.Pos, ch.Text, out, declares)
}

func (p *Parser) parseTransition() ast.Transition {
	if p.at(lexer.Arrow) {
		kw := p.next()
		to := p.expect(lexer.Ident, "target state")
		if p.at(lexer.Semicolon) {
			p.next()
		}
		return ast.NewUnconditional(kw.Pos, to.Text)
	}
	kw := p.expect(lexer.KwIf, "'if'")
	p.expect(lexer.LParen, "'('")
	cond := p.parseExpr()
	p.expect(lexer.RParen, "')'")
	p.expect(lexer.LBrace, "'{'")
	thenActions, thenTo := p.parseBranch()
	p.expect(lexer.RBrace, "'}'")

	p.expect(lexer.KwElse, "'else'")
	p.expect(lexer.LBrace, "'{'")
	elseActions, elseTo := p.parseBranch()
	p.expect(lexer.RBrace, "'}'")

	return ast.NewIfElse(kw.Pos, cond, thenActions, thenTo, elseActions, elseTo)
}

// parseBranch parses one if/else branch body: an action list followed by a
// plain `-> State` target. Branches are not themselves full transitions —
// there is no nested if/else inside a branch in this grammar.
func (p *Parser) parseBranch() ([]ast.Action, string) {
	var actions []ast.Action
	for {
		switch p.peek().Kind {
		case lexer.KwDo:
			actions = append(actions, p.parseDoAction())
		case lexer.KwSend:
			actions = append(actions, p.parseSendAction())
		case lexer.KwReceive:
			actions = append(actions, p.parseReceiveAction())
		case lexer.KwTrySend:
			actions = append(actions, p.parseTrySendAction())
		case lexer.KwTryReceive:
			actions = append(actions, p.parseTryReceiveAction())
		case lexer.Arrow:
			p.next()
			to := p.expect(lexer.Ident, "target state")
			if p.at(lexer.Semicolon) {
				p.next()
			}
			return actions, to.Text
		default:
			t := p.peek()
			p.errorf(t.Pos, "expected an action or '->' inside if/else branch, got %q", t.Text)
			p.skipTo(lexer.RBrace)
			return actions, ""
		}
	}
}

// --- expressions ---

// precedence table for the Pratt expression parser, lowest to highest.
var binPrec = map[lexer.Kind]int{
	lexer.OrOr:   1,
	lexer.AndAnd: 2,
	lexer.EqEq:   3,
	lexer.NotEq:  3,
	lexer.LAngle: 4,
	lexer.LtEq:   4,
	lexer.RAngle: 4,
	lexer.GtEq:   4,
	lexer.Plus:   5,
	lexer.Minus:  5,
	lexer.Star:   6,
	lexer.Slash:  6,
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnaryPostfix()
	for {
		op := p.peek()
		prec, ok := binPrec[op.Kind]
		if !ok || prec < minPrec {
			return left
		}
		p.next()
		right := p.parseBinary(prec + 1)
		left = ast.NewBinary(op.Pos, op.Text, left, right)
	}
}

// parseUnaryPostfix handles the postfix '?' operator (CAPS has no prefix
// unary operators besides it).
func (p *Parser) parseUnaryPostfix() ast.Expr {
	e := p.parsePrimary()
	for p.at(lexer.Question) {
		q := p.next()
		e = ast.NewTry(q.Pos, e)
	}
	return e
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.peek()
	switch t.Kind {
	case lexer.IntLit:
		p.next()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			p.errorf(t.Pos, "invalid integer literal %q", t.Text)
		}
		return ast.NewIntLit(t.Pos, n)
	case lexer.RealLit:
		p.next()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			p.errorf(t.Pos, "invalid real literal %q", t.Text)
		}
		return ast.NewRealLit(t.Pos, f)
	case lexer.TextLit:
		p.next()
		return ast.NewTextLit(t.Pos, t.Text)
	case lexer.KwTrue:
		p.next()
		return ast.NewBoolLit(t.Pos, true)
	case lexer.KwFalse:
		p.next()
		return ast.NewBoolLit(t.Pos, false)
	case lexer.LParen:
		p.next()
		e := p.parseExpr()
		p.expect(lexer.RParen, "')'")
		return e
	case lexer.Ident:
		p.next()
		if p.at(lexer.LParen) {
			p.next()
			var args []ast.Expr
			if !p.at(lexer.RParen) {
				for {
					args = append(args, p.parseExpr())
					if p.at(lexer.Comma) {
						p.next()
						continue
					}
					break
				}
			}
			p.expect(lexer.RParen, "')'")
			return ast.NewCall(t.Pos, t.Text, args)
		}
		return ast.NewIdent(t.Pos, t.Text)
	}
	p.errorf(t.Pos, "expected an expression, got %q", t.Text)
	p.next()
	return ast.NewIntLit(t.Pos, 0)
}

func (p *Parser) parseSchedule() *ast.Schedule {
	kw := p.expect(lexer.KwSchedule, "'schedule'")
	p.expect(lexer.LBrace, "'{'")
	sched := &ast.Schedule{Pos: kw.Pos}
	p.expect(lexer.KwStep, "'step'")
	sched.Steps = p.parseIdentList()
	p.expect(lexer.Semicolon, "';'")
	if p.at(lexer.KwRepeat) {
		p.next()
		p.expect(lexer.Semicolon, "';'")
		sched.Repeat = true
	}
	p.expect(lexer.RBrace, "'}'")
	return sched
}
