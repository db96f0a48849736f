// Package dashboard summarizes the registry for humans: a snapshot
// aggregator, a text renderer and the embedded web page.
package dashboard

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed assets
var assets embed.FS

// Handler serves the embedded dashboard page. index.html is served at /,
// style.css and app.js at their paths. The page reads /api/dashboard and
// follows /api/dashboard/ws for live updates.
func Handler() http.Handler {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		// Unreachable: "assets" is embedded at build time.
		panic(err)
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
