package render

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Default option values
const (
	DefaultOpenBracket  = "{{"
	DefaultCloseBracket = "}}"
	DefaultRootDir      = "views"
	DefaultMaxDepth     = 64
)

// Options configures a Renderer. They are fixed for the Renderer's lifetime.
type Options struct {
	OpenBracket  string
	CloseBracket string

	// RootDir holds entry templates
	RootDir string

	// PartialsDir holds partials. Defaults to RootDir/../partials
	PartialsDir string

	// DefaultValues are merged under the data of every render.
	// Nil means DefaultValues().
	DefaultValues map[string]any

	// MaxDepth bounds partial nesting
	MaxDepth int
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		OpenBracket:   DefaultOpenBracket,
		CloseBracket:  DefaultCloseBracket,
		RootDir:       DefaultRootDir,
		DefaultValues: DefaultValues(),
		MaxDepth:      DefaultMaxDepth,
	}
}

// LineTransformer post-processes every fully substituted line.
type LineTransformer interface {
	Transform(ctx context.Context, line string) (string, error)
}

// LineTransformerFunc adapts a function to LineTransformer.
type LineTransformerFunc func(ctx context.Context, line string) (string, error)

// Transform implements LineTransformer
func (f LineTransformerFunc) Transform(ctx context.Context, line string) (string, error) {
	return f(ctx, line)
}

type identityTransformer struct{}

func (identityTransformer) Transform(_ context.Context, line string) (string, error) {
	return line, nil
}

// Option customizes a Renderer
type Option func(*Renderer)

// WithReader sets the reader used for templates and partials
func WithReader(reader FileReader) Option {
	return func(r *Renderer) {
		r.reader = reader
	}
}

// WithTransformer sets the line post-processor
func WithTransformer(transformer LineTransformer) Option {
	return func(r *Renderer) {
		r.transformer = transformer
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// Renderer renders entry templates. It holds no per-render state and is safe
// for concurrent use if its reader and transformer are.
type Renderer struct {
	opts        Options
	pattern     *regexp.Regexp
	reader      FileReader
	transformer LineTransformer
	logger      *zap.Logger
}

// NewRenderer creates a renderer
func NewRenderer(opts Options, options ...Option) (*Renderer, error) {
	if opts.OpenBracket == "" {
		opts.OpenBracket = DefaultOpenBracket
	}
	if opts.CloseBracket == "" {
		opts.CloseBracket = DefaultCloseBracket
	}
	if opts.RootDir == "" {
		opts.RootDir = DefaultRootDir
	}
	if opts.PartialsDir == "" {
		opts.PartialsDir = filepath.Join(opts.RootDir, "..", "partials")
	}
	if opts.DefaultValues == nil {
		opts.DefaultValues = DefaultValues()
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxDepth < 0 {
		return nil, NewInvalidOptionsError("MaxDepth", "must be positive")
	}
	if strings.TrimSpace(opts.OpenBracket) == "" || strings.TrimSpace(opts.CloseBracket) == "" {
		return nil, NewInvalidOptionsError("OpenBracket", "brackets cannot be blank")
	}
	if opts.OpenBracket == opts.CloseBracket {
		return nil, NewInvalidOptionsError("CloseBracket", "must differ from OpenBracket")
	}

	pattern, err := regexp.Compile(regexp.QuoteMeta(opts.OpenBracket) + `(.*?)` + regexp.QuoteMeta(opts.CloseBracket))
	if err != nil {
		return nil, NewInvalidOptionsError("OpenBracket", err.Error())
	}

	r := &Renderer{
		opts:        opts,
		pattern:     pattern,
		reader:      OSReader{},
		transformer: identityTransformer{},
		logger:      zap.NewNop(),
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	return r, nil
}

// Options returns the effective options
func (r *Renderer) Options() Options {
	return r.opts
}

// HasPlaceholders reports whether text contains at least one placeholder
func (r *Renderer) HasPlaceholders(text string) bool {
	return r.pattern.MatchString(text)
}

// Render resolves the entry template against data and writes each line,
// followed by a newline, to w. A template without placeholders is written
// unchanged. Lines are written as they resolve, so w may have received a
// prefix of the output when an error is returned.
func (r *Renderer) Render(ctx context.Context, w io.Writer, entry string, data map[string]any) error {
	start := time.Now()
	path, err := r.entryPath(entry)
	if err != nil {
		return err
	}

	content, err := r.reader.ReadFile(ctx, path)
	if err != nil {
		return NewFileAccessError(path, RoleEntry, err)
	}

	if !r.HasPlaceholders(content) {
		if _, err := io.WriteString(w, content); err != nil {
			return fmt.Errorf("failed to write template: %w", err)
		}
		return nil
	}

	p := r.newPipeline()
	data = mergeData(r.opts.DefaultValues, data)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}

		resolved, err := p.resolveLine(ctx, line, data, 0)
		if err != nil {
			r.logger.Debug("render failed",
				zap.String("template", entry),
				zap.Int("line", i+1),
				zap.Error(err),
			)
			return err
		}

		if _, err := io.WriteString(w, resolved+"\n"); err != nil {
			return fmt.Errorf("failed to write line %d: %w", i+1, err)
		}
	}

	stats := p.cache.Stats()
	r.logger.Info("template rendered",
		zap.String("template", entry),
		zap.Int("lines", len(lines)),
		zap.Int("partial_reads", stats.Misses),
		zap.Int("partial_cache_hits", stats.Hits),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// RenderString renders the entry template into a string
func (r *Renderer) RenderString(ctx context.Context, entry string, data map[string]any) (string, error) {
	var b strings.Builder
	if err := r.Render(ctx, &b, entry, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// ResolveLine resolves a single line against data with a fresh partial cache
func (r *Renderer) ResolveLine(ctx context.Context, line string, data map[string]any) (string, error) {
	return r.newPipeline().resolveLine(ctx, line, mergeData(r.opts.DefaultValues, data), 0)
}

// entryPath resolves an entry name under the root directory. Names that are
// absolute or climb out of the root are reported as missing.
func (r *Renderer) entryPath(entry string) (string, error) {
	name := filepath.FromSlash(entry)
	if !filepath.IsLocal(name) {
		return "", NewFileAccessError(entry, RoleEntry,
			fmt.Errorf("entry outside template root: %w", fs.ErrNotExist))
	}
	return resolvePath(r.opts.RootDir, name), nil
}

// resolvePath resolves name under dir unless name is already absolute.
func resolvePath(dir, name string) string {
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return filepath.Clean(name)
	}
	return abs
}
