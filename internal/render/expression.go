package render

import (
	"strings"
)

const (
	partialPrefix  = "partial('"
	partialSuffix  = "')"
	iteratorPrefix = "forEach"
)

// Kind identifies the variant of a placeholder expression.
type Kind int

const (
	// KindLookup is a dotted path into the data, e.g. user.name
	KindLookup Kind = iota

	// KindPartial includes a partial, e.g. partial('header.html')
	KindPartial

	// KindIterator repeats a partial per element, e.g. forEach(posts, 'post.html')
	KindIterator
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindIterator:
		return "forEach"
	default:
		return "lookup"
	}
}

// Classify returns the kind of a trimmed placeholder expression.
// It never fails: anything that is not a partial or forEach is a lookup.
func Classify(expr string) Kind {
	switch {
	case strings.HasPrefix(expr, partialPrefix):
		return KindPartial
	case strings.HasPrefix(expr, iteratorPrefix):
		return KindIterator
	default:
		return KindLookup
	}
}

// Expression is a parsed placeholder: Lookup, PartialRef or IteratorRef.
type Expression interface {
	Kind() Kind
	String() string
}

// Lookup is a dotted path into the data.
type Lookup struct {
	Path []string
}

// Kind implements Expression
func (Lookup) Kind() Kind { return KindLookup }

func (l Lookup) String() string { return strings.Join(l.Path, ".") }

// PartialRef names a partial relative to the partials directory.
type PartialRef struct {
	Name string
}

// Kind implements Expression
func (PartialRef) Kind() Kind { return KindPartial }

func (p PartialRef) String() string { return partialPrefix + p.Name + partialSuffix }

// IteratorRef expands Partial once per element of the sequence at Collection.
type IteratorRef struct {
	Collection Lookup
	Partial    PartialRef
}

// Kind implements Expression
func (IteratorRef) Kind() Kind { return KindIterator }

func (i IteratorRef) String() string {
	return iteratorPrefix + "(" + i.Collection.String() + ", '" + i.Partial.Name + "')"
}

// ParseExpression parses the trimmed text between the brackets.
func ParseExpression(expr string) (Expression, error) {
	switch Classify(expr) {
	case KindPartial:
		return parsePartial(expr)
	case KindIterator:
		return parseIterator(expr)
	default:
		return parseLookup(expr), nil
	}
}

func parseLookup(expr string) Lookup {
	return Lookup{Path: strings.Split(expr, ".")}
}

// parsePartial parses partial('<name>')
func parsePartial(expr string) (PartialRef, error) {
	if !strings.HasPrefix(expr, partialPrefix) || !strings.HasSuffix(expr, partialSuffix) ||
		len(expr) < len(partialPrefix)+len(partialSuffix) {
		return PartialRef{}, NewMalformedExpressionError(expr)
	}

	name := strings.TrimSpace(expr[len(partialPrefix) : len(expr)-len(partialSuffix)])
	if name == "" {
		return PartialRef{}, NewMalformedExpressionError(expr)
	}

	return PartialRef{Name: name}, nil
}

// parseIterator parses forEach(<collection>, <partial argument>). The partial
// argument is wrapped as partial(<argument>), so it is normally a quoted name.
func parseIterator(expr string) (IteratorRef, error) {
	args := strings.TrimSpace(strings.TrimPrefix(expr, iteratorPrefix))
	if !strings.HasPrefix(args, "(") || !strings.HasSuffix(args, ")") {
		return IteratorRef{}, NewMalformedExpressionError(expr)
	}
	args = args[1 : len(args)-1]

	collection, partialArg, ok := strings.Cut(args, ",")
	if !ok {
		return IteratorRef{}, NewMalformedExpressionError(expr)
	}
	collection = strings.TrimSpace(collection)
	partialArg = strings.TrimSpace(partialArg)
	if collection == "" || partialArg == "" {
		return IteratorRef{}, NewMalformedExpressionError(expr)
	}

	partial, err := parsePartial("partial(" + partialArg + ")")
	if err != nil {
		return IteratorRef{}, NewMalformedExpressionError(expr)
	}

	return IteratorRef{
		Collection: parseLookup(collection),
		Partial:    partial,
	}, nil
}
