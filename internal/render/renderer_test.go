package render

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader counts reads per path
type countingReader struct {
	mu    sync.Mutex
	reads map[string]int
}

func newCountingReader() *countingReader {
	return &countingReader{reads: make(map[string]int)}
}

func (c *countingReader) ReadFile(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	c.reads[path]++
	c.mu.Unlock()
	return OSReader{}.ReadFile(ctx, path)
}

func (c *countingReader) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[path]
}

type fixture struct {
	root     string
	partials string
}

func newFixture(t *testing.T, views, partials map[string]string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		root:     filepath.Join(dir, "views"),
		partials: filepath.Join(dir, "partials"),
	}
	writeFiles(t, f.root, views)
	writeFiles(t, f.partials, partials)
	return f
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestRenderer(t *testing.T, f fixture, options ...Option) *Renderer {
	t.Helper()
	r, err := NewRenderer(Options{RootDir: f.root, PartialsDir: f.partials}, options...)
	require.NoError(t, err)
	return r
}

func TestRenderer_Lookup(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.html": "Hello {{user.name}}!"}, nil)
	r := newTestRenderer(t, f)

	out, err := r.RenderString(context.Background(), "hello.html", map[string]any{
		"user": map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!\n", out)
}

func TestRenderer_MissingPathRendersUndefined(t *testing.T) {
	f := newFixture(t, map[string]string{"page.html": "{{user.name}}"}, nil)
	r := newTestRenderer(t, f)

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "undefined\n", out)
}

func TestRenderer_PlainTemplateIsUnchanged(t *testing.T) {
	plain := "<!DOCTYPE html>\n<html>\n  <body>{ not a placeholder }</body>\n</html>"
	f := newFixture(t, map[string]string{"plain.html": plain}, nil)
	r := newTestRenderer(t, f, WithTransformer(LineTransformerFunc(func(_ context.Context, line string) (string, error) {
		return "", errors.New("transform must not run")
	})))

	out, err := r.RenderString(context.Background(), "plain.html", nil)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestRenderer_DefaultValues(t *testing.T) {
	f := newFixture(t, map[string]string{
		"page.html": "<title>{{meta.title}}</title>{{meta.keywords}}|{{meta.author}}",
	}, nil)
	r := newTestRenderer(t, f)

	t.Run("defaults render empty", func(t *testing.T) {
		out, err := r.RenderString(context.Background(), "page.html", nil)
		require.NoError(t, err)
		assert.Equal(t, "<title></title>|\n", out)
	})

	t.Run("call data replaces top level keys", func(t *testing.T) {
		out, err := r.RenderString(context.Background(), "page.html", map[string]any{
			"meta": map[string]any{"title": "Home"},
		})
		require.NoError(t, err)
		assert.Equal(t, "<title>Home</title>undefined|undefined\n", out)
	})
}

func TestRenderer_Partials(t *testing.T) {
	f := newFixture(t,
		map[string]string{
			"home.html": "{{partial('head.html')}}\n<main>{{partial('components/card.html')}}</main>",
		},
		map[string]string{
			"head.html":            "<head><title>static</title></head>",
			"components/card.html": "<div>{{title}}</div>\n<p>{{partial('byline.html')}}</p>",
			"byline.html":          "by {{author}}",
		},
	)
	r := newTestRenderer(t, f)

	out, err := r.RenderString(context.Background(), "home.html", map[string]any{
		"title":  "Post",
		"author": "Ada",
	})
	require.NoError(t, err)

	want := "<head><title>static</title></head>\n" +
		"<main><div>Post</div>\n<p>by Ada\n</p>\n</main>\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderer_PartialIsReadOncePerRender(t *testing.T) {
	f := newFixture(t,
		map[string]string{"page.html": "{{partial('nav.html')}}\n{{partial('nav.html')}}{{partial('nav.html')}}"},
		map[string]string{"nav.html": "<nav>{{site}}</nav>"},
	)
	reader := newCountingReader()
	r := newTestRenderer(t, f, WithReader(reader))
	navPath := filepath.Join(f.partials, "nav.html")

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{"site": "blog"})
	require.NoError(t, err)
	assert.Equal(t, "<nav>blog</nav>\n\n<nav>blog</nav>\n<nav>blog</nav>\n\n", out)
	assert.Equal(t, 1, reader.count(navPath))

	t.Run("cache is not shared across renders", func(t *testing.T) {
		_, err := r.RenderString(context.Background(), "page.html", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, reader.count(navPath))
	})
}

func TestRenderer_ForEach(t *testing.T) {
	f := newFixture(t,
		map[string]string{"list.html": "{{forEach(items, 'row.html')}}"},
		map[string]string{"row.html": "{{v}}-{{index}}"},
	)
	reader := newCountingReader()
	r := newTestRenderer(t, f, WithReader(reader))

	out, err := r.RenderString(context.Background(), "list.html", map[string]any{
		"items": []any{
			map[string]any{"v": float64(1)},
			map[string]any{"v": float64(2)},
			map[string]any{"v": float64(3)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1-0\n2-1\n3-2\n\n", out)
	assert.Equal(t, 1, reader.count(filepath.Join(f.partials, "row.html")))

	t.Run("empty collection", func(t *testing.T) {
		out, err := r.RenderString(context.Background(), "list.html", map[string]any{"items": []any{}})
		require.NoError(t, err)
		assert.Equal(t, "\n", out)
	})

	t.Run("scalar elements", func(t *testing.T) {
		writeFiles(t, f.partials, map[string]string{"tag.html": "#{{item}}"})
		writeFiles(t, f.root, map[string]string{"tags.html": "{{forEach(tags, 'tag.html')}}"})

		out, err := r.RenderString(context.Background(), "tags.html", map[string]any{"tags": []string{"go", "web"}})
		require.NoError(t, err)
		assert.Equal(t, "#go\n#web\n\n", out)
	})
}

func TestRenderer_ContextRestoredAfterForEach(t *testing.T) {
	f := newFixture(t,
		map[string]string{"page.html": "{{v}}|{{forEach(items, 'row.html')}}|{{v}}|{{index}}"},
		map[string]string{"row.html": "{{v}}"},
	)
	r := newTestRenderer(t, f)

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{
		"v":     "outer",
		"items": []any{map[string]any{"v": "a"}, map[string]any{"v": "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "outer|a\nb\n|outer|undefined\n", out)
}

func TestRenderer_NestedForEach(t *testing.T) {
	f := newFixture(t,
		map[string]string{"page.html": "{{forEach(groups, 'group.html')}}{{name}}"},
		map[string]string{
			"group.html":  "[{{name}}:{{forEach(members, 'member.html')}}{{name}}@{{index}}]",
			"member.html": "{{name}}@{{index}} ",
		},
	)
	r := newTestRenderer(t, f)

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{
		"name": "root",
		"groups": []any{
			map[string]any{"name": "g0", "members": []any{
				map[string]any{"name": "m0"},
				map[string]any{"name": "m1"},
			}},
			map[string]any{"name": "g1", "members": []any{}},
		},
	})
	require.NoError(t, err)

	want := "[g0:m0@0 \nm1@1 \ng0@0]\n" +
		"[g1:g1@1]\n" +
		"root\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderer_ResolvedValuesAreNotRescanned(t *testing.T) {
	f := newFixture(t, map[string]string{"page.html": "{{a}} {{b}}"}, nil)
	r := newTestRenderer(t, f)

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{
		"a": "{{a}}",
		"b": "{{partial('x.html')}}",
	})
	require.NoError(t, err)
	assert.Equal(t, "{{a}} {{partial('x.html')}}\n", out)
}

func TestRenderer_ResolveLineIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := newTestRenderer(t, f)
	data := map[string]any{"user": map[string]any{"name": "Ada"}}

	once, err := r.ResolveLine(context.Background(), "<p>Hello {{user.name}}</p>", data)
	require.NoError(t, err)
	twice, err := r.ResolveLine(context.Background(), once, data)
	require.NoError(t, err)

	assert.Equal(t, "<p>Hello Ada</p>", once)
	assert.Equal(t, once, twice)
}

func TestRenderer_CustomBrackets(t *testing.T) {
	f := newFixture(t,
		map[string]string{"page.html": "<% title %> {{title}} <%partial('p.html')%>"},
		map[string]string{"p.html": "[<%title%>]"},
	)
	r, err := NewRenderer(Options{
		OpenBracket:  "<%",
		CloseBracket: "%>",
		RootDir:      f.root,
		PartialsDir:  f.partials,
	})
	require.NoError(t, err)

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{"title": "T"})
	require.NoError(t, err)
	assert.Equal(t, "T {{title}} [T]\n\n", out)
}

func TestRenderer_TransformerRunsPerLine(t *testing.T) {
	f := newFixture(t,
		map[string]string{"page.html": "a {{partial('p.html')}}\nb"},
		map[string]string{"p.html": "x{{v}}\ny"},
	)
	var seen []string
	r := newTestRenderer(t, f, WithTransformer(LineTransformerFunc(func(_ context.Context, line string) (string, error) {
		seen = append(seen, line)
		return strings.ToUpper(line), nil
	})))

	out, err := r.RenderString(context.Background(), "page.html", map[string]any{"v": "v"})
	require.NoError(t, err)

	assert.Equal(t, "A XV\nY\n\nB\n", out)
	assert.Equal(t, []string{"xv", "y", "a XV\nY\n", "b"}, seen)
}

func TestRenderer_Errors(t *testing.T) {
	f := newFixture(t,
		map[string]string{
			"missing-partial.html": "ok\n{{partial('nope.html')}}",
			"not-iterable.html":    "{{forEach(title, 'row.html')}}",
			"missing-list.html":    "{{forEach(items, 'row.html')}}",
			"malformed.html":       "{{forEach(items)}}",
			"loop.html":            "{{partial('self.html')}}",
		},
		map[string]string{
			"row.html":  "{{v}}",
			"self.html": "again {{partial('self.html')}}",
		},
	)
	r := newTestRenderer(t, f)
	ctx := context.Background()

	t.Run("missing entry template", func(t *testing.T) {
		_, err := r.RenderString(ctx, "nope.html", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFileAccess))
		assert.True(t, errors.Is(err, fs.ErrNotExist))

		var customErr *cuserr.CustomError
		require.True(t, errors.As(err, &customErr))
		role, ok := customErr.GetMetadata(MetaKeyRole)
		assert.True(t, ok)
		assert.Equal(t, RoleEntry, role)
	})

	t.Run("entry outside the root", func(t *testing.T) {
		secret := filepath.Join(filepath.Dir(f.root), "secret.txt")
		require.NoError(t, os.WriteFile(secret, []byte("TOP-SECRET"), 0o644))

		reader := newCountingReader()
		guarded := newTestRenderer(t, f, WithReader(reader))

		for _, entry := range []string{secret, "../secret.txt", "nested/../../secret.txt"} {
			out, err := guarded.RenderString(ctx, entry, nil)
			require.Error(t, err, entry)
			assert.Empty(t, out)
			assert.True(t, errors.Is(err, ErrFileAccess), entry)
			assert.True(t, errors.Is(err, fs.ErrNotExist), entry)

			var customErr *cuserr.CustomError
			require.True(t, errors.As(err, &customErr))
			role, _ := customErr.GetMetadata(MetaKeyRole)
			assert.Equal(t, RoleEntry, role)
		}
		assert.Zero(t, reader.count(secret))
	})

	t.Run("nested entry inside the root", func(t *testing.T) {
		writeFiles(t, filepath.Join(f.root, "pages"), map[string]string{"about.html": "{{meta.title}}!"})

		out, err := r.RenderString(ctx, "pages/about.html", map[string]any{"meta": map[string]any{"title": "About"}})
		require.NoError(t, err)
		assert.Equal(t, "About!\n", out)
	})

	t.Run("missing partial aborts the render", func(t *testing.T) {
		var buf bytes.Buffer
		err := r.Render(ctx, &buf, "missing-partial.html", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFileAccess))
		assert.Equal(t, "ok\n", buf.String(), "lines before the failure were already written")

		var customErr *cuserr.CustomError
		require.True(t, errors.As(err, &customErr))
		path, _ := customErr.GetMetadata(MetaKeyPath)
		assert.Equal(t, filepath.Join(f.partials, "nope.html"), path)
		role, _ := customErr.GetMetadata(MetaKeyRole)
		assert.Equal(t, RolePartial, role)
	})

	t.Run("collection is not a sequence", func(t *testing.T) {
		_, err := r.RenderString(ctx, "not-iterable.html", map[string]any{"title": "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotIterable))

		var customErr *cuserr.CustomError
		require.True(t, errors.As(err, &customErr))
		typ, _ := customErr.GetMetadata(MetaKeyType)
		assert.Equal(t, "string", typ)
	})

	t.Run("collection is missing", func(t *testing.T) {
		_, err := r.RenderString(ctx, "missing-list.html", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotIterable))
	})

	t.Run("malformed forEach", func(t *testing.T) {
		_, err := r.RenderString(ctx, "malformed.html", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedExpression))
	})

	t.Run("self including partial hits the depth limit", func(t *testing.T) {
		_, err := r.RenderString(ctx, "loop.html", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRecursionLimit))
	})

	t.Run("transform failure", func(t *testing.T) {
		failing := newTestRenderer(t, f, WithTransformer(LineTransformerFunc(func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		})))
		_, err := failing.RenderString(ctx, "not-iterable.html", map[string]any{"title": []any{}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransform))
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := r.RenderString(canceled, "missing-partial.html", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestNewRenderer_Options(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		r, err := NewRenderer(Options{})
		require.NoError(t, err)

		opts := r.Options()
		assert.Equal(t, DefaultOpenBracket, opts.OpenBracket)
		assert.Equal(t, DefaultCloseBracket, opts.CloseBracket)
		assert.Equal(t, DefaultRootDir, opts.RootDir)
		assert.Equal(t, "partials", opts.PartialsDir)
		assert.Equal(t, DefaultMaxDepth, opts.MaxDepth)
		assert.Contains(t, opts.DefaultValues, "meta")
	})

	t.Run("partials default to a sibling of the root", func(t *testing.T) {
		r, err := NewRenderer(Options{RootDir: filepath.Join("site", "views")})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("site", "partials"), r.Options().PartialsDir)
	})

	t.Run("negative depth", func(t *testing.T) {
		_, err := NewRenderer(Options{MaxDepth: -1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidOptions))
	})

	t.Run("blank bracket", func(t *testing.T) {
		_, err := NewRenderer(Options{OpenBracket: "  "})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidOptions))
	})

	t.Run("identical brackets", func(t *testing.T) {
		_, err := NewRenderer(Options{OpenBracket: "%%", CloseBracket: "%%"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidOptions))
	})
}

func TestRenderer_ConcurrentRenders(t *testing.T) {
	f := newFixture(t,
		map[string]string{"page.html": "{{forEach(items, 'row.html')}}"},
		map[string]string{"row.html": "{{id}}:{{index}}"},
	)
	r := newTestRenderer(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			out, err := r.RenderString(context.Background(), "page.html", map[string]any{
				"items": []any{map[string]any{"id": id}, map[string]any{"id": id}},
			})
			assert.NoError(t, err)
			want := strconv.Itoa(id) + ":0\n" + strconv.Itoa(id) + ":1\n\n"
			assert.Equal(t, want, out)
		}(i)
	}
	wg.Wait()
}
