// Package expr defines the boolean predicate tree that every ledger query is
// built from before it is compiled to SQL.
//
// ARCHITECTURE:
//
//	[criteria] -> [filter] -> [Expression] -> Optimize -> [querysql.Compile] -> SQL
//
// Filters translate user-facing criteria into Expressions; the optimizer
// normalizes the tree once; the SQL compiler only ever sees optimized trees.
//
// SEALED INTERFACE:
//
// Expression is a sealed interface using the marker method pattern. Only the
// node types in this package implement it, which lets the compiler use an
// exhaustive type switch:
//
//	switch e := expression.(type) {
//	case expr.Equal:
//	    // col = :pN
//	case expr.And:
//	    // (a AND b)
//	...
//	}
//
// NODE KINDS:
//
//   - Constants: True, False, Void
//   - Leaves: Equal, Between, GreaterThanEqual, LessThanEqual, Like, Contains
//   - Connectives: And, Or
//
// Every leaf names an entity property (not a column). Mapping properties to
// columns is the compiler's job; an unknown property is a programming error.
//
// VOID:
//
// Void means "this criterion contributes nothing". It is the identity of both
// And and Or and is removed by Optimize. Void must never reach the compiler.
package expr
