package main

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	"github.com/woozymasta/reproj/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Dir string `short:"d" long:"dir" description:"Assets directory" default:"assets"`
}

type PageData struct {
	CSS string
	JS  string
	SVG string
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)

	minifyFile := func(name, mediatype string) string {
		raw, err := os.ReadFile(filepath.Join(opts.Dir, name))
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Failed to read asset")
		}
		out, err := m.String(mediatype, string(raw))
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Failed to minify asset")
		}
		log.Debug().
			Str("file", name).
			Int("before", len(raw)).
			Int("after", len(out)).
			Msg("Asset minified")
		return out
	}

	data := PageData{
		CSS: minifyFile("style.css", "text/css"),
		JS:  minifyFile("script.js", "text/javascript"),
		SVG: minifyFile("favicon.svg", "image/svg+xml"),
	}

	htmlRaw, err := os.ReadFile(filepath.Join(opts.Dir, "index.html.tpl"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read page template")
	}

	tmpl, err := template.New("index").Parse(string(htmlRaw))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse page template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute page template")
	}

	finalHTML, err := m.String("text/html", buf.String())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to minify page")
	}

	out := filepath.Join(opts.Dir, "index.html")
	if err := os.WriteFile(out, []byte(finalHTML), 0644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write page")
	}

	log.Info().Str("file", out).Int("bytes", len(finalHTML)).Msg("Viewer page built")
}
