package runtime

import "github.com/capslang/caps/ir"

// evalExpr evaluates an ir.Expr against p's current locals/outputs. sema
// has already type-checked every expression the scheduler will ever
// evaluate, so evalExpr never needs to report a diagnostic — a mismatch
// here would be an internal bug, not a program error.
func (rt *Runtime) evalExpr(p *ProcessInstance, e ir.Expr) Value {
	switch e.Kind {
	case ir.EKLitInt:
		return IntValue(e.LitInt)
	case ir.EKLitBool:
		return BoolValue(e.LitBool)
	case ir.EKLitReal:
		return RealValue(e.LitReal)
	case ir.EKLitText:
		return TextValue(e.LitText)
	case ir.EKVar:
		if v, ok := p.Locals[e.Name]; ok {
			return v
		}
		if v, ok := p.Outputs[e.Name]; ok {
			return v
		}
		return UnsetValue()
	case ir.EKLenChannel:
		if ch, ok := rt.Channels[e.Name]; ok {
			return IntValue(int64(len(ch.Buffer)))
		}
		return IntValue(0)
	case ir.EKBinOp:
		a := rt.evalExpr(p, e.Args[0])
		b := rt.evalExpr(p, e.Args[1])
		return evalBinOp(e.Op, a, b)
	}
	return UnsetValue()
}

func evalBinOp(op string, a, b Value) Value {
	switch op {
	case "==":
		return BoolValue(valuesEqual(a, b))
	case "!=":
		return BoolValue(!valuesEqual(a, b))
	case "&&":
		return BoolValue(IsTruthy(a) && IsTruthy(b))
	case "||":
		return BoolValue(IsTruthy(a) || IsTruthy(b))
	case "<", "<=", ">", ">=":
		return BoolValue(compareNumeric(op, a, b))
	case "+", "-", "*", "/":
		return arith(op, a, b)
	}
	return UnsetValue()
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case VInt:
		return a.I == b.I
	case VBool:
		return a.B == b.B
	case VReal:
		return a.R == b.R
	case VText:
		return a.S == b.S
	default:
		return false
	}
}

func compareNumeric(op string, a, b Value) bool {
	af, bf := numericOf(a), numericOf(b)
	switch op {
	case "<":
		return af < bf
	case "<=":
		return af <= bf
	case ">":
		return af > bf
	case ">=":
		return af >= bf
	}
	return false
}

func numericOf(v Value) float64 {
	if v.Kind == VReal {
		return v.R
	}
	return float64(v.I)
}

func arith(op string, a, b Value) Value {
	if a.Kind == VReal || b.Kind == VReal {
		af, bf := numericOf(a), numericOf(b)
		switch op {
		case "+":
			return RealValue(af + bf)
		case "-":
			return RealValue(af - bf)
		case "*":
			return RealValue(af * bf)
		case "/":
			return RealValue(af / bf)
		}
	}
	switch op {
	case "+":
		return IntValue(a.I + b.I)
	case "-":
		return IntValue(a.I - b.I)
	case "*":
		return IntValue(a.I * b.I)
	case "/":
		return IntValue(a.I / b.I)
	}
	return UnsetValue()
}
