// Package idgen holds the id strategies the stores use.
//
// Users get sequential integers. Citations and arrests get a record id from
// a RecordFunc; the default is a 21 character URL-safe random token.
package idgen

import (
	"fmt"
	"strconv"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Sequence hands out increasing int64 ids starting at 1.
// Ids are never reused, even after the row they named is deleted.
// Sequence is not safe for concurrent use.
type Sequence struct {
	next int64
}

// NewSequence returns a Sequence whose next id is next (at least 1).
func NewSequence(next int64) *Sequence {
	if next < 1 {
		next = 1
	}
	return &Sequence{next: next}
}

// Next returns the next id and advances the sequence.
func (s *Sequence) Next() int64 {
	id := s.next
	s.next++
	return id
}

// Peek returns the id Next would return, without advancing.
func (s *Sequence) Peek() int64 {
	return s.next
}

// Observe makes sure the sequence stays ahead of an id that already exists.
// Stores call it while loading so a stale "next id" can't collide.
func (s *Sequence) Observe(id int64) {
	if id >= s.next {
		s.next = id + 1
	}
}

// RecordFunc produces a record id. seq is the collection's sequence number
// for the new record; random strategies ignore it.
type RecordFunc func(seq int64) (string, error)

// Token returns a 21 character nanoid.
func Token(int64) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("idgen: generating token: %w", err)
	}
	return id, nil
}

// Numeric formats the sequence number itself. Deterministic, which makes it
// handy for fixtures and the CLI's offline imports.
func Numeric(seq int64) (string, error) {
	return strconv.FormatInt(seq, 10), nil
}

// ByName resolves a configured strategy name. Empty means "token".
func ByName(name string) (RecordFunc, error) {
	switch name {
	case "", "token":
		return Token, nil
	case "numeric":
		return Numeric, nil
	default:
		return nil, fmt.Errorf("idgen: unknown record id strategy %q", name)
	}
}
