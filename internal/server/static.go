// Package server serves the relay console page, embedded or from a directory.
package server

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

//go:embed web
var embeddedWeb embed.FS

// staticFS returns dir as a filesystem, or the embedded page when dir is empty.
func staticFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, err := fs.Sub(embeddedWeb, "web")
	if err != nil {
		panic(err)
	}
	return sub
}

// StaticHandler serves index.html at the root and assets under /static/.
func StaticHandler(fsys fs.FS) http.Handler {
	assets := http.StripPrefix("/static/", http.FileServerFS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			http.ServeFileFS(w, r, fsys, "index.html")
		case strings.HasPrefix(r.URL.Path, "/static/"):
			assets.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
