package expr

// Expression is a boolean-valued predicate over entity properties.
//
// This is a sealed interface - only types in this package implement it.
type Expression interface {
	expression() // Marker method - seals interface to this package
}

// True matches every row.
type True struct{}

func (True) expression() {}

// False matches no row.
type False struct{}

func (False) expression() {}

// Void is the "not yet decided" placeholder produced for criteria that
// contribute nothing (e.g. unknown keys). Optimize removes it.
type Void struct{}

func (Void) expression() {}

// Equal matches rows whose property equals Value.
//
// Translates to SQL:
//
//	column = :pN
type Equal struct {
	Property string
	Value    any
}

func (Equal) expression() {}

// Between matches rows whose property lies in [From, To] (inclusive).
//
// Translates to SQL:
//
//	column BETWEEN :pN AND :pM
type Between struct {
	Property string
	From     any
	To       any
}

func (Between) expression() {}

// GreaterThanEqual matches rows whose property is >= Value.
type GreaterThanEqual struct {
	Property string
	Value    any
}

func (GreaterThanEqual) expression() {}

// LessThanEqual matches rows whose property is <= Value.
type LessThanEqual struct {
	Property string
	Value    any
}

func (LessThanEqual) expression() {}

// Like matches rows whose property matches Pattern. The caller supplies the
// wildcard characters (% and _) in the pattern.
type Like struct {
	Property string
	Pattern  string
}

func (Like) expression() {}

// Contains matches rows whose JSON property structurally contains Value.
// Only the transaction asset uses it.
//
// Translates to SQL (PostgreSQL):
//
//	column @> :pN
type Contains struct {
	Property string
	Value    any
}

func (Contains) expression() {}

// And matches rows that satisfy every sub-expression.
// An empty And is True.
type And struct {
	Expressions []Expression
}

func (And) expression() {}

// Or matches rows that satisfy at least one sub-expression.
// An empty Or is False.
type Or struct {
	Expressions []Expression
}

func (Or) expression() {}

// NewAnd builds an And over the given expressions.
func NewAnd(expressions ...Expression) And {
	return And{Expressions: expressions}
}

// NewOr builds an Or over the given expressions.
func NewOr(expressions ...Expression) Or {
	return Or{Expressions: expressions}
}
