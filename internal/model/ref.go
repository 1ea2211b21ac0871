package model

import (
	"fmt"
	"strings"
)

// RefKind distinguishes a reference picked from a known list from one typed
// in by hand.
type RefKind int

const (
	RefSelected RefKind = iota + 1
	RefFreeText
)

const (
	selectedPrefix = "id:"
	freeTextPrefix = "other:"
)

// Ref is either Selected(id) or FreeText(text). The zero Ref is unset.
type Ref struct {
	Kind  RefKind
	Value string
}

// Selected returns a reference to a known id.
func Selected(id string) Ref { return Ref{Kind: RefSelected, Value: id} }

// FreeText returns a hand-entered "Other" value.
func FreeText(text string) Ref { return Ref{Kind: RefFreeText, Value: text} }

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.Kind == 0 }

// ID returns the selected id, or "" for free text and unset refs.
func (r Ref) ID() string {
	if r.Kind == RefSelected {
		return r.Value
	}
	return ""
}

// String renders the reference as "id:<value>" or "other:<value>".
func (r Ref) String() string {
	switch r.Kind {
	case RefSelected:
		return selectedPrefix + r.Value
	case RefFreeText:
		return freeTextPrefix + r.Value
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields the
// zero Ref.
func (r *Ref) UnmarshalText(text []byte) error {
	ref, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// ParseRef parses the String form of a Ref.
func ParseRef(s string) (Ref, error) {
	switch {
	case s == "":
		return Ref{}, nil
	case strings.HasPrefix(s, selectedPrefix):
		return Selected(strings.TrimPrefix(s, selectedPrefix)), nil
	case strings.HasPrefix(s, freeTextPrefix):
		return FreeText(strings.TrimPrefix(s, freeTextPrefix)), nil
	}
	return Ref{}, fmt.Errorf("invalid reference %q", s)
}
