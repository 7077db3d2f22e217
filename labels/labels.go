// Package labels - Class label tables for detection heads.
package labels

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Set is an ordered collection of class labels. The position of a name is
// the class id the detection head emits for it.
type Set struct {
	names []string
	// nameToID for fast lookup by name
	nameToID map[string]int
}

// NewSet builds a Set from an ordered name list.
func NewSet(names []string) *Set {
	s := &Set{
		names:    make([]string, len(names)),
		nameToID: make(map[string]int, len(names)),
	}
	copy(s.names, names)
	for i, n := range s.names {
		s.nameToID[n] = i
	}
	return s
}

// Len returns the number of classes in the set.
func (s *Set) Len() int {
	return len(s.names)
}

// Name returns the label for a class id.
func (s *Set) Name(id int) (string, error) {
	if id < 0 || id >= len(s.names) {
		return "", errors.Errorf("class id %d out of range [0,%d)", id, len(s.names))
	}
	return s.names[id], nil
}

// NameOrIndex returns the label for a class id, falling back to the decimal
// id for out-of-range values so display paths never fail.
func (s *Set) NameOrIndex(id int) string {
	if id >= 0 && id < len(s.names) {
		return s.names[id]
	}
	return "class " + strconv.Itoa(id)
}

// ID returns the class id for a label.
func (s *Set) ID(name string) (int, error) {
	id, ok := s.nameToID[name]
	if !ok {
		return -1, errors.Errorf("unknown label %q", name)
	}
	return id, nil
}

// Names returns a copy of the ordered label list.
func (s *Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Resolve maps label names to class ids, for allow-list configuration.
// Any unknown name fails the whole call and the error lists the known
// labels so a config typo is easy to spot.
func (s *Set) Resolve(names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	for _, n := range names {
		id, ok := s.nameToID[n]
		if !ok {
			return nil, errors.Errorf("unknown label %q (known: %s)", n, strings.Join(s.names, ", "))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
