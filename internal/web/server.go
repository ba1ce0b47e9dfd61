// Package web serves the admin dashboard's static assets. The
// dashboard's HTML/JS is an opaque front-end (spec.md §1 Non-goals);
// this package only embeds and serves whatever is under static/, and
// parses its accompanying manifest for the control plane's overview
// endpoint.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed static/*
var staticFiles embed.FS

// Manifest describes the embedded dashboard asset bundle, read from
// static/manifest.yaml at package init. The control plane surfaces
// Version on /api/overview so an operator can tell which dashboard
// build is baked into a running binary.
type Manifest struct {
	Version string   `yaml:"version"`
	Assets  []string `yaml:"assets"`
}

var manifest Manifest

func init() {
	data, err := staticFiles.ReadFile("static/manifest.yaml")
	if err != nil {
		return // no manifest shipped; CurrentManifest() returns the zero value
	}
	_ = yaml.Unmarshal(data, &manifest)
}

// CurrentManifest returns the parsed dashboard asset manifest.
func CurrentManifest() Manifest { return manifest }

// Handler returns an http.Handler serving the dashboard's static
// assets, falling back to index.html for the bundle's root path.
func Handler() http.Handler {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" {
			// http.FileServer serves index.html for "/" itself; a path
			// of "/index.html" would be redirected back to "./".
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}

// StripAndServe adapts Handler to sit behind a "/dashboard" mount point:
// it rewrites the request path to strip that prefix before delegating,
// the way http.StripPrefix does, but also maps the bare mount point
// ("/dashboard" with no trailing slash) to the bundle root.
func StripAndServe(prefix string) http.Handler {
	handler := Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		handler.ServeHTTP(w, r)
	})
}
