package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/woozymasta/reproj/assets"
	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/crs"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

// TransformerSource builds transformers, loading geoid grids as needed.
type TransformerSource interface {
	Transformer(ctx context.Context, src, dst crs.ID) (*crs.Transformer, error)
}

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config       *config.Config
	Resolver     map[string]string
	Files        map[string][]string
	Transformers TransformerSource
	IndexHTML    []byte
	Favicon      []byte

	cache   *ttlcache.Cache[string, *crs.Transformer]
	mu      sync.Mutex
	started bool
}

// NewServerContext initializes the context and processes the dataset configuration.
// It filters out datasets without outputs and sets up the name resolver.
func NewServerContext(cfg *config.Config, transformers TransformerSource) *ServerContext {
	log.Info().Int("config_datasets_count", len(cfg.Datasets)).Msg("Initializing server context")

	files := make(map[string][]string)
	valid := make([]config.Dataset, 0, len(cfg.Datasets))

	for _, d := range cfg.Datasets {
		dir := filepath.Join(cfg.Output, d.Name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn().
				Str("dataset", d.Name).
				Str("path", dir).
				Msg("Skipping dataset: output directory not found")
			continue
		}

		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) == ".part" {
				continue
			}
			files[d.Name] = append(files[d.Name], e.Name())
		}
		if len(files[d.Name]) == 0 {
			log.Warn().
				Str("dataset", d.Name).
				Msg("Skipping dataset: no outputs")
			continue
		}

		log.Debug().
			Str("dataset", d.Name).
			Strs("files", files[d.Name]).
			Msg("Dataset validated and added to context")

		valid = append(valid, d)
	}

	cfg.Datasets = valid

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *crs.Transformer](30*time.Minute),
		ttlcache.WithCapacity[string, *crs.Transformer](256),
	)

	log.Info().
		Int("valid_datasets_count", len(cfg.Datasets)).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:       cfg,
		Resolver:     cfg.Resolver(),
		Files:        files,
		Transformers: transformers,
		IndexHTML:    assets.Index,
		Favicon:      assets.Favicon,
		cache:        cache,
	}
}

// Start runs cache expiry until Stop is called.
func (s *ServerContext) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.cache.Start()
}

// Stop halts cache expiry. It is a no-op unless Start ran.
func (s *ServerContext) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cache.Stop()
}

// transformer returns a cached transformer for the pair.
func (s *ServerContext) transformer(ctx context.Context, src, dst crs.ID) (*crs.Transformer, error) {
	key := src.String() + ">" + dst.String()
	if item := s.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	t, err := s.Transformers.Transformer(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, t, ttlcache.DefaultTTL)
	return t, nil
}

// Routes registers the handlers behind the request logger.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets", s.HandleDatasetsList)
	mux.HandleFunc("/api/crs", s.HandleCRSList)
	mux.HandleFunc("/api/transform", s.HandleTransform)
	mux.HandleFunc("/favicon.svg", s.HandleFavicon)
	mux.HandleFunc("/data/", s.HandleData)
	mux.HandleFunc("/", s.HandleIndex)

	return RequestLogger(mux)
}
