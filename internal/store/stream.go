package store

import (
	"database/sql"
	"iter"
)

// Stream is a forward-only cursor over decoded rows.
//
// Rows are decoded one at a time in query order; nothing is buffered beyond
// what the driver fetches. A Stream is not restartable. Close releases the
// connection and is safe to call more than once.
//
//	s, err := repo.StreamByExpression(ctx, e, sorting)
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		use(s.Value())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream[T any] struct {
	rows   *sql.Rows
	cols   []string
	decode func(*sql.Rows, []string) (T, error)
	cur    T
	err    error
	closed bool
}

func newStream[T any](rows *sql.Rows, decode func(*sql.Rows, []string) (T, error)) (*Stream[T], error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Stream[T]{rows: rows, cols: cols, decode: decode}, nil
}

// Next advances to the next row. It returns false at the end of the result
// or on the first error; the stream closes itself in both cases.
func (s *Stream[T]) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		s.Close()
		return false
	}
	item, err := s.decode(s.rows, s.cols)
	if err != nil {
		s.err = err
		s.Close()
		return false
	}
	s.cur = item
	return true
}

// Value returns the row Next advanced to.
func (s *Stream[T]) Value() T {
	return s.cur
}

// Err returns the error that stopped iteration, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close releases the underlying rows.
func (s *Stream[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rows.Close()
}

// All adapts the stream to a range-over-func sequence. The stream is closed
// when the loop ends, including on break. A decode or driver error is
// yielded once as the final element.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Value(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
