package render

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// pipeline is the state of one render: the renderer's settings plus the
// partial cache. Data is passed by value through every call, never stored.
type pipeline struct {
	*Renderer
	cache *PartialCache
}

func (r *Renderer) newPipeline() *pipeline {
	return &pipeline{
		Renderer: r,
		cache:    NewPartialCache(r.reader),
	}
}

// resolveLine replaces every placeholder of line, scanning left to right,
// then runs the line transformer. Replacement values are not scanned again.
func (p *pipeline) resolveLine(ctx context.Context, line string, data map[string]any, depth int) (string, error) {
	matches := p.pattern.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return p.postProcess(ctx, line)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(line[last:m[0]])

		value, err := p.resolveExpression(ctx, strings.TrimSpace(line[m[2]:m[3]]), data, depth)
		if err != nil {
			return "", err
		}
		b.WriteString(value)

		last = m[1]
	}
	b.WriteString(line[last:])

	return p.postProcess(ctx, b.String())
}

func (p *pipeline) resolveExpression(ctx context.Context, raw string, data map[string]any, depth int) (string, error) {
	expr, err := ParseExpression(raw)
	if err != nil {
		return "", err
	}

	switch e := expr.(type) {
	case Lookup:
		value, found := lookupPath(data, e.Path)
		return formatValue(value, found), nil
	case PartialRef:
		return p.resolvePartial(ctx, e, data, depth)
	case IteratorRef:
		return p.resolveIterator(ctx, e, data, depth)
	default:
		return "", NewMalformedExpressionError(raw)
	}
}

// resolvePartial loads a partial through the cache and resolves its lines.
// A partial without placeholders is returned as is.
func (p *pipeline) resolvePartial(ctx context.Context, ref PartialRef, data map[string]any, depth int) (string, error) {
	path := resolvePath(p.opts.PartialsDir, ref.Name)
	if depth >= p.opts.MaxDepth {
		return "", NewRecursionLimitError(path, depth)
	}

	content, cached, err := p.cache.Load(ctx, path)
	if err != nil {
		return "", err
	}
	p.logger.Debug("partial loaded",
		zap.String("partial", path),
		zap.Bool("cached", cached),
		zap.Int("depth", depth),
	)

	if !p.HasPlaceholders(content) {
		return content, nil
	}

	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		resolved, err := p.resolveLine(ctx, line, data, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// resolveIterator resolves the partial once per element, in index order, each
// time under the element's own data.
func (p *pipeline) resolveIterator(ctx context.Context, ref IteratorRef, data map[string]any, depth int) (string, error) {
	value, found := lookupPath(data, ref.Collection.Path)
	if !found {
		return "", NewNotIterableError(ref.Collection.String(), nil)
	}
	elements, ok := asSequence(value)
	if !ok {
		return "", NewNotIterableError(ref.Collection.String(), value)
	}

	var b strings.Builder
	for i, element := range elements {
		resolved, err := p.resolvePartial(ctx, ref.Partial, elementData(data, element, i), depth)
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
	}
	return b.String(), nil
}

func (p *pipeline) postProcess(ctx context.Context, line string) (string, error) {
	out, err := p.transformer.Transform(ctx, line)
	if err != nil {
		return "", NewTransformError(err)
	}
	return out, nil
}
