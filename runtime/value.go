package runtime

import "fmt"

// ValueKind tags Value's active field. Unlike the original's std::variant,
// CAPS's value space at this spec's scope is closed to scalars plus the
// one compound shape (Result, represented as a Record), so a tag plus
// per-kind fields is simpler than a Go interface with one type per kind.
type ValueKind int

const (
	Unset ValueKind = iota
	VInt
	VBool
	VReal
	VText
	VRecord
)

// Value is a runtime value. Record is used exclusively to represent
// Result<T,E> as {ok, value, error}, per original_source/result.h's
// "Result is a Record with fields ok/value/error" convention.
type Value struct {
	Kind   ValueKind
	I      int64
	B      bool
	R      float64
	S      string
	Record map[string]Value
}

func UnsetValue() Value          { return Value{Kind: Unset} }
func IntValue(x int64) Value     { return Value{Kind: VInt, I: x} }
func BoolValue(x bool) Value     { return Value{Kind: VBool, B: x} }
func RealValue(x float64) Value  { return Value{Kind: VReal, R: x} }
func TextValue(x string) Value   { return Value{Kind: VText, S: x} }

func (v Value) IsUnset() bool { return v.Kind == Unset }

// ResultOk builds a Result<T,E> value in the "ok" arm.
func ResultOk(v Value) Value {
	return Value{Kind: VRecord, Record: map[string]Value{
		"ok":    BoolValue(true),
		"value": v,
		"error": TextValue(""),
	}}
}

// ResultErrText builds a Result<T,text> value in the error arm.
func ResultErrText(msg string) Value {
	return Value{Kind: VRecord, Record: map[string]Value{
		"ok":    BoolValue(false),
		"value": UnsetValue(),
		"error": TextValue(msg),
	}}
}

func ResultIsOk(v Value) bool {
	return v.Kind == VRecord && v.Record["ok"].B
}

func ResultValue(v Value) Value { return v.Record["value"] }
func ResultError(v Value) Value { return v.Record["error"] }

func IsTruthy(v Value) bool {
	switch v.Kind {
	case VBool:
		return v.B
	case VInt:
		return v.I != 0
	case VReal:
		return v.R != 0
	case VText:
		return v.S != ""
	case Unset:
		return false
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case Unset:
		return "<unset>"
	case VInt:
		return fmt.Sprintf("%d", v.I)
	case VBool:
		return fmt.Sprintf("%t", v.B)
	case VReal:
		return fmt.Sprintf("%g", v.R)
	case VText:
		return v.S
	case VRecord:
		if ok, found := v.Record["ok"]; found {
			if ok.B {
				return fmt.Sprintf("Ok(%s)", v.Record["value"])
			}
			return fmt.Sprintf("Err(%s)", v.Record["error"])
		}
		return fmt.Sprintf("%v", v.Record)
	default:
		return "?"
	}
}
