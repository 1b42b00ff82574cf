// Package assets embeds the viewer page served at "/".
package assets

import _ "embed"

// Index is the minified viewer page built by cmd/minify.
//
//go:embed index.html
var Index []byte

// Favicon is the site icon.
//
//go:embed favicon.svg
var Favicon []byte
