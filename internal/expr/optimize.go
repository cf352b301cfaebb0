package expr

// Optimize normalizes an expression tree bottom-up:
//   - Void is dropped from And/Or
//   - True is dropped from And, False is dropped from Or
//   - a False inside And makes the whole And False (and True inside Or, True)
//   - nested And/Or of the same kind are flattened
//   - And([]) is True, Or([]) is False, single-child connectives collapse
//
// Optimize is idempotent: Optimize(Optimize(e)) == Optimize(e).
// A bare Void at the root stays Void; the compiler rejects it.
func Optimize(e Expression) Expression {
	switch n := e.(type) {
	case And:
		return optimizeAnd(n.Expressions)
	case *And:
		return optimizeAnd(n.Expressions)
	case Or:
		return optimizeOr(n.Expressions)
	case *Or:
		return optimizeOr(n.Expressions)
	default:
		return e
	}
}

func optimizeAnd(children []Expression) Expression {
	out := make([]Expression, 0, len(children))
	for _, child := range children {
		switch c := Optimize(child).(type) {
		case Void, True:
			continue
		case False:
			return False{}
		case And:
			out = append(out, c.Expressions...)
		default:
			out = append(out, c)
		}
	}

	switch len(out) {
	case 0:
		return True{}
	case 1:
		return out[0]
	default:
		return And{Expressions: out}
	}
}

func optimizeOr(children []Expression) Expression {
	out := make([]Expression, 0, len(children))
	for _, child := range children {
		switch c := Optimize(child).(type) {
		case Void, False:
			continue
		case True:
			return True{}
		case Or:
			out = append(out, c.Expressions...)
		default:
			out = append(out, c)
		}
	}

	switch len(out) {
	case 0:
		return False{}
	case 1:
		return out[0]
	default:
		return Or{Expressions: out}
	}
}
