package css

import (
	"context"
	"regexp"
	"strings"
	"sync"

	douceur "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/gorilla/css/scanner"
)

const maxCacheEntries = 1024

// markupPattern matches a whole <style> element or a quoted style attribute.
var markupPattern = regexp.MustCompile(
	`(?is)(<style\b[^>]*>)(.*?)(</style\s*>)` +
		`|(\sstyle\s*=\s*)(?:"([^"]*)"|'([^']*)')`,
)

// Options configures a Processor
type Options struct {
	// Stage is the lowest feature stage that is applied
	Stage int

	// Disabled lists feature names to skip regardless of stage
	Disabled []string
}

// Processor rewrites stylesheets embedded in markup. It is safe for
// concurrent use.
type Processor struct {
	features []Feature
	cache    map[string]string
	mu       sync.RWMutex
}

// NewProcessor creates a processor with the built-in features enabled by opts
func NewProcessor(opts Options) *Processor {
	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[strings.TrimSpace(name)] = true
	}

	var features []Feature
	for _, f := range Features() {
		if f.Stage >= opts.Stage && !disabled[f.Name] {
			features = append(features, f)
		}
	}

	return &Processor{
		features: features,
		cache:    make(map[string]string),
	}
}

// Features returns the names of the enabled features in application order
func (p *Processor) Features() []string {
	names := make([]string, len(p.features))
	for i, f := range p.features {
		names[i] = f.Name
	}
	return names
}

// Transform processes one line of markup
func (p *Processor) Transform(_ context.Context, line string) (string, error) {
	return p.Process(line), nil
}

// Process rewrites every <style> body and style attribute of markup
func (p *Processor) Process(markup string) string {
	if len(p.features) == 0 || !containsFold(markup, "style") {
		return markup
	}

	matches := markupPattern.FindAllStringSubmatchIndex(markup, -1)
	if len(matches) == 0 {
		return markup
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		switch {
		case m[2] >= 0:
			b.WriteString(markup[last:m[4]])
			b.WriteString(p.stylesheet(markup[m[4]:m[5]]))
			b.WriteString(markup[m[5]:m[1]])
		case m[10] >= 0:
			b.WriteString(markup[last:m[10]])
			b.WriteString(p.inline(markup[m[10]:m[11]]))
			b.WriteString(markup[m[11]:m[1]])
		case m[12] >= 0:
			b.WriteString(markup[last:m[12]])
			b.WriteString(p.inline(markup[m[12]:m[13]]))
			b.WriteString(markup[m[13]:m[1]])
		default:
			b.WriteString(markup[last:m[1]])
		}
		last = m[1]
	}
	b.WriteString(markup[last:])

	return b.String()
}

// ClearCache drops memoized results
func (p *Processor) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]string)
}

func (p *Processor) stylesheet(text string) string {
	return p.cached("s:"+text, func() string { return p.rewrite(text, 0) })
}

func (p *Processor) inline(text string) string {
	return p.cached("i:"+text, func() string { return p.rewrite(text, 1) })
}

// cached memoizes compute by key
func (p *Processor) cached(key string, compute func() string) string {
	p.mu.RLock()
	if out, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return out
	}
	p.mu.RUnlock()

	out := compute()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cache) >= maxCacheEntries {
		p.cache = make(map[string]string)
	}
	p.cache[key] = out

	return out
}

// rewrite walks text split on '{', '}' and ';'. Segments ending in '{' are
// selectors or at-rule preludes; the others are declarations when inside a
// block. depth is 1 for the value of a style attribute.
func (p *Processor) rewrite(text string, depth int) string {
	tokens, ok := tokenize(text)
	if !ok {
		return text
	}

	var out, segment strings.Builder
	flush := func(declaration bool) {
		if declaration && depth > 0 {
			out.WriteString(p.declaration(segment.String()))
		} else {
			out.WriteString(segment.String())
		}
		segment.Reset()
	}

	for _, tok := range tokens {
		if tok.Type == scanner.TokenChar {
			switch tok.Value {
			case "{":
				flush(false)
				out.WriteString(tok.Value)
				depth++
				continue
			case "}":
				flush(true)
				out.WriteString(tok.Value)
				if depth > 0 {
					depth--
				}
				continue
			case ";":
				flush(true)
				out.WriteString(tok.Value)
				continue
			}
		}
		segment.WriteString(tok.Value)
	}
	flush(true)

	return out.String()
}

// declaration applies the features to one raw declaration, keeping the
// surrounding whitespace. Unchanged declarations keep their exact text.
func (p *Processor) declaration(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.Contains(trimmed, ":") {
		return raw
	}

	// douceur only records a value once it reaches the terminator
	decls, err := parser.ParseDeclarations(trimmed + ";")
	if err != nil || len(decls) != 1 || decls[0].Value == "" {
		return raw
	}

	out, changed := p.apply(decls[0])
	if !changed {
		return raw
	}

	start := strings.Index(raw, trimmed)
	return raw[:start] + serialize(out) + raw[start+len(trimmed):]
}

// apply runs every enabled feature over the declaration and its expansions
func (p *Processor) apply(decl *douceur.Declaration) ([]*douceur.Declaration, bool) {
	decls := []*douceur.Declaration{decl}
	changed := false

	for _, f := range p.features {
		next := make([]*douceur.Declaration, 0, len(decls))
		for _, d := range decls {
			if replaced, ok := f.Apply(d); ok {
				next = append(next, replaced...)
				changed = true
				continue
			}
			next = append(next, d)
		}
		decls = next
	}

	return decls, changed
}

func serialize(decls []*douceur.Declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.Property + ": " + d.Value
		if d.Important {
			parts[i] += " !important"
		}
	}
	return strings.Join(parts, "; ")
}

// tokenize scans text. It fails when the scanner reports an error or the
// tokens do not reproduce text exactly.
func tokenize(text string) ([]*scanner.Token, bool) {
	s := scanner.New(text)

	var tokens []*scanner.Token
	length := 0
	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF {
			break
		}
		if tok.Type == scanner.TokenError {
			return nil, false
		}
		tokens = append(tokens, tok)
		length += len(tok.Value)
	}

	if length != len(text) {
		return nil, false
	}
	return tokens, true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
