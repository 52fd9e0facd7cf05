package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/traitdex/traitdex/internal/cas"
	"github.com/traitdex/traitdex/internal/config"
	"github.com/traitdex/traitdex/internal/docs"
	"github.com/traitdex/traitdex/internal/impljs"
	"github.com/traitdex/traitdex/internal/registry"
	"github.com/traitdex/traitdex/internal/rpc"
	"github.com/traitdex/traitdex/internal/store"
	"github.com/traitdex/traitdex/internal/watch"
	"golang.org/x/sync/singleflight"
)

type Server struct {
	db         *store.DB
	cfg        *config.Config
	reg        *registry.Registry
	socketPath string
	httpServer *http.Server
	listener   net.Listener
	watcher    interface{ Close() error }

	mu         sync.Mutex
	expTimer   *time.Timer
	expiration time.Duration

	addCrateGroup singleflight.Group

	// versionHints maps crate name to the version last ingested via
	// add-crates, so the sink can attribute watcher-published mappings.
	versionHintsMu sync.RWMutex
	versionHints   map[string]string
}

// watcherFactory builds the site watcher; swapped in tests.
var watcherFactory = func(root string, reg *registry.Registry) (interface{ Close() error }, error) {
	w, err := watch.New(root, reg)
	if err != nil {
		return nil, err
	}
	w.Start()
	return w, nil
}

func NewServer(cfg *config.Config, database *store.DB, socketPath string) *Server {
	expSec := cfg.Daemon.ExpirationSeconds
	if expSec <= 0 {
		expSec = 600
	}

	return &Server{
		db:           database,
		cfg:          cfg,
		reg:          registry.New(),
		socketPath:   socketPath,
		expiration:   time.Duration(expSec) * time.Second,
		versionHints: make(map[string]string),
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = listener

	// The watcher starts before the sink installs, so artifacts published
	// during startup take the pending-queue branch and drain below.
	if root := s.cfg.Site.Root.Value; root != "" {
		w, err := watcherFactory(root, s.reg)
		if err != nil {
			listener.Close()
			return fmt.Errorf("starting site watcher: %w", err)
		}
		s.watcher = w
		slog.Info("daemon: watching site", "root", root)
	}

	drained := s.reg.Install(s.persistMapping)
	if drained > 0 {
		slog.Info("daemon: drained pending mappings", "count", drained)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /add-crates", s.withExpReset(s.handleAddCrates))
	mux.HandleFunc("POST /publish", s.withExpReset(s.handlePublish))
	mux.HandleFunc("POST /implementors", s.withExpReset(s.handleImplementors))
	mux.HandleFunc("POST /list-traits", s.withExpReset(s.handleListTraits))
	mux.HandleFunc("POST /search", s.withExpReset(s.handleSearch))
	mux.HandleFunc("GET /status", s.withExpReset(s.handleStatus))
	mux.HandleFunc("POST /clear-cache", s.withExpReset(s.handleClearCache))
	mux.HandleFunc("POST /shutdown", s.handleShutdown)

	s.httpServer = &http.Server{Handler: mux}

	s.mu.Lock()
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	slog.Info("daemon: listening", "socket", s.socketPath, "expiration", s.expiration)

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			slog.Error("daemon: watcher close error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("daemon: shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			slog.Error("daemon: listener close error", "error", err)
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		slog.Error("daemon: socket remove error", "error", err)
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		slog.Error("daemon: db close error", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) expire() {
	slog.Info("daemon: expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	os.Exit(0)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

// --- Registration sink ---

func (s *Server) hintVersion(crate, version string) {
	s.versionHintsMu.Lock()
	s.versionHints[crate] = version
	s.versionHintsMu.Unlock()
}

func (s *Server) hintedVersion(crate string) string {
	s.versionHintsMu.RLock()
	defer s.versionHintsMu.RUnlock()
	if v, ok := s.versionHints[crate]; ok {
		return v
	}
	return "latest"
}

// persistMapping is the registration sink: every published mapping — from
// add-crates, the site watcher, or /publish — lands here and is written to
// the store, fragments to the CAS.
func (s *Server) persistMapping(m *impljs.Mapping) {
	if m.Trait == "" {
		slog.Warn("daemon: dropping mapping without trait origin", "mapping", m.String())
		return
	}

	definingCrate, _, _ := strings.Cut(m.Trait, "::")
	traitName := m.Trait
	if i := strings.LastIndex(traitName, "::"); i >= 0 {
		traitName = traitName[i+2:]
	}

	crate, err := s.db.UpsertCrate(definingCrate, s.hintedVersion(definingCrate))
	if err != nil {
		slog.Error("daemon: persisting mapping", "trait", m.Trait, "error", err)
		return
	}

	var fragments []store.StoredFragment
	for groupPos, sourceCrate := range m.Crates() {
		frags, _ := m.Fragments(sourceCrate)
		for pos, frag := range frags {
			hash, err := cas.Write(frag)
			if err != nil {
				slog.Error("daemon: writing fragment", "trait", m.Trait, "error", err)
				return
			}
			fragments = append(fragments, store.StoredFragment{
				SourceCrate: sourceCrate,
				GroupPos:    groupPos,
				Position:    pos,
				ContentHash: hash,
				HeaderText:  docs.FragmentText(frag),
			})
		}
	}

	if err := s.db.ReplaceTraitImplementors(crate.ID, m.Trait, traitName, "", fragments); err != nil {
		slog.Error("daemon: storing implementors", "trait", m.Trait, "error", err)
		return
	}
	slog.Info("daemon: registered implementors", "trait", m.Trait,
		"crates", m.Len(), "fragments", len(fragments))
}

// --- Handlers ---

func (s *Server) handleAddCrates(w http.ResponseWriter, r *http.Request) {
	var req rpc.AddCratesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	send := func(line rpc.ProgressLine) bool {
		if line.Message != "" {
			slog.Info("daemon: " + line.Message)
		}
		if err := enc.Encode(line); err != nil {
			slog.Warn("daemon: client disconnected", "error", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for _, spec := range req.Crates {
		progress := func(msg string) {
			send(rpc.ProgressLine{Type: "progress", Message: msg})
		}
		result := s.addCrate(spec, progress)
		if !send(rpc.ProgressLine{Type: "result", Result: &result}) {
			return
		}
	}
}

func (s *Server) addCrate(spec rpc.CrateSpec, progress func(string)) rpc.CrateResult {
	version := spec.Version
	if version == "" {
		version = "latest"
	}

	// Singleflight: dedup concurrent ingests of the same crate@version
	key := spec.Name + "@" + version
	v, _, _ := s.addCrateGroup.Do(key, func() (interface{}, error) {
		return s.addCrateWork(spec.Name, version, progress), nil
	})
	return v.(rpc.CrateResult)
}

func (s *Server) addCrateWork(name, version string, progress func(string)) rpc.CrateResult {
	result := rpc.CrateResult{Name: name, Version: version}

	existing, err := s.db.FindCrate(name, version)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if existing != nil && existing.ProcessedAt != nil {
		traits, err := s.db.ListTraits(existing.ID)
		if err == nil {
			result.Traits = len(traits)
		}
		progress(fmt.Sprintf("%s@%s already indexed", name, version))
		return result
	}

	var rustdocCrate *docs.RustdocCrate
	if docs.HasCrateCache(name, version) {
		progress(fmt.Sprintf("loading %s@%s from cache", name, version))
		rustdocCrate, err = docs.LoadCrateCache(name, version)
	}
	if rustdocCrate == nil {
		progress(fmt.Sprintf("fetching %s@%s from docs.rs", name, version))
		var data []byte
		data, err = docs.FetchCrateJSON(name, version, s.cfg.Fetch.UserAgent)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if err := docs.SaveCrateCache(data, name, version); err != nil {
			slog.Warn("daemon: caching rustdoc JSON", "crate", name, "error", err)
		}
		rustdocCrate, err = docs.Parse(data)
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	crate, err := s.db.UpsertCrate(name, version)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if err := s.db.MarkCrateFetched(crate.ID); err != nil {
		result.Error = err.Error()
		return result
	}
	s.hintVersion(name, version)

	traits := docs.CollectTraits(rustdocCrate, name)
	progress(fmt.Sprintf("registering %d traits from %s@%s", len(traits), name, version))

	for _, trait := range traits {
		// All ingestion funnels through the registration point, same as
		// artifacts arriving from a watched site.
		s.reg.Publish(docs.ImplementorMapping(trait, rustdocCrate, name))

		if trait.Docs != "" {
			hash, err := cas.Write(docs.RenderDocs(trait.Docs))
			if err == nil {
				err = s.db.SetTraitDocs(crate.ID, trait.Path, hash)
			}
			if err != nil {
				slog.Warn("daemon: storing trait docs", "trait", trait.Path, "error", err)
			}
		}
	}

	if err := s.db.MarkCrateProcessed(crate.ID); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Traits = len(traits)
	return result
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req rpc.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := impljs.Parse([]byte(req.Artifact))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Trait != "" {
		m.Trait = req.Trait
	}

	queued := !s.reg.Ready()
	s.reg.Publish(m)

	writeJSON(w, http.StatusOK, rpc.PublishResponse{
		Queued:    queued,
		Crates:    m.Len(),
		Fragments: m.FragmentCount(),
	})
}

func (s *Server) handleImplementors(w http.ResponseWriter, r *http.Request) {
	var req rpc.ImplementorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version == "" {
		req.Version = "latest"
	}

	crate, err := s.db.FindCrate(req.Crate, req.Version)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if crate == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("crate %s@%s not found", req.Crate, req.Version))
		return
	}

	trait, err := s.db.FindTrait(crate.ID, req.Trait)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trait == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("trait %s not found in %s@%s", req.Trait, req.Crate, req.Version))
		return
	}

	resp := rpc.ImplementorsResponse{Trait: trait.Path}
	if trait.DocsHash != "" {
		if docsHTML, err := cas.Read(trait.DocsHash); err == nil {
			resp.DocsHTML = docsHTML
		}
	}

	fragments, err := s.db.TraitFragments(trait.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var entry *rpc.ImplementorEntry
	for _, f := range fragments {
		content, err := cas.Read(f.ContentHash)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("fragment %s missing from CAS: %v", f.ContentHash, err))
			return
		}
		if entry == nil || entry.Crate != f.SourceCrate {
			resp.Entries = append(resp.Entries, rpc.ImplementorEntry{Crate: f.SourceCrate})
			entry = &resp.Entries[len(resp.Entries)-1]
		}
		entry.Fragments = append(entry.Fragments, content)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTraits(w http.ResponseWriter, r *http.Request) {
	var req rpc.ListTraitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version == "" {
		req.Version = "latest"
	}

	crate, err := s.db.FindCrate(req.Crate, req.Version)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if crate == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("crate %s@%s not found", req.Crate, req.Version))
		return
	}

	traits, err := s.db.ListTraits(crate.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := rpc.ListTraitsResponse{}
	for _, t := range traits {
		resp.Traits = append(resp.Traits, rpc.TraitSummary{
			Path:         t.Path,
			Name:         t.Name,
			Implementors: t.Implementors,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req rpc.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	hits, err := s.db.SearchImplementors(req.Query, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := rpc.SearchResponse{}
	for _, h := range hits {
		resp.Results = append(resp.Results, rpc.ImplResult{
			CrateName:    h.CrateName,
			CrateVersion: h.CrateVersion,
			Trait:        h.TraitPath,
			SourceCrate:  h.SourceCrate,
			Header:       h.HeaderText,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	crates, err := s.db.ListCrates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := rpc.StatusResponse{
		Registry: rpc.RegistryStatus{
			Ready:     s.reg.Ready(),
			Pending:   s.reg.Pending(),
			Published: s.reg.Published(),
		},
	}
	for _, c := range crates {
		resp.Crates = append(resp.Crates, rpc.CrateStatus{
			Name:      c.Name,
			Version:   c.Version,
			Processed: c.ProcessedAt != nil,
			Traits:    c.Traits,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	var req rpc.ClearCacheRequest
	// An empty or absent body means the default JSON-cache-only clear.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := docs.ClearCrateCache(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.All {
		if err := cas.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.db.ClearAll(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		slog.Info("daemon: cleared all indexed data")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		os.Exit(0)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
