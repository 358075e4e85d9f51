// Package render resolves {{ }} placeholders in HTML templates.
//
// A template line may contain any number of placeholders. Each placeholder is
// one of three expressions:
//
//	{{user.name}}                     # lookup of a dotted path in the data
//	{{partial('header.html')}}        # include of a partial, resolved recursively
//	{{forEach(posts, 'post.html')}}   # the partial once per element of posts
//
// Inside a forEach partial the element's own fields and its zero-based index
// are visible next to the outer data:
//
//	<li>{{index}}: {{title}} by {{author.name}}</li>
//
// A lookup whose path does not exist renders as the text "undefined".
//
// Example usage:
//
//	renderer, err := render.NewRenderer(render.Options{
//	    RootDir:     "views",
//	    PartialsDir: "partials",
//	}, render.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	html, err := renderer.RenderString(ctx, "home.html", map[string]any{
//	    "user": map[string]any{"name": "Ada"},
//	})
//
// Every call to Render owns its partial cache and its data; a Renderer can be
// shared between goroutines.
package render
