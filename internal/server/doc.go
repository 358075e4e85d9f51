// Package server binds the renderer to HTTP.
//
// Pages are served from a route table, usually loaded from YAML:
//
//	routes:
//	  - path: /
//	    template: home.html
//	    data:
//	      meta:
//	        title: Home
//	  - path: /about
//	    template: about.html
//
// Query parameters are visible to the template under "query", so
// /?name=Ada can be rendered with {{query.name}}.
//
// Any template can also be rendered on demand:
//
//	POST /render
//	{"template": "home.html", "data": {"user": {"name": "Ada"}}}
//
// Responses are buffered: a render either succeeds as a whole or produces an
// error page. Health checks are served on a separate port:
//
//	healthServer := server.NewHealthServer(8082, map[string]server.Check{
//	    "templates": server.DirCheck("views"),
//	}, logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package server
