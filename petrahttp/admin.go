package petrahttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lovell/petra/store"
)

// AdminHandler exposes purge and status endpoints over the cache a
// Middleware maintains. It writes its own small JSON envelope directly
// rather than depending on a response-helper package.
//
// Its purge-by-host and purge-by-path endpoints exist because
// KeyGenerator keeps a request's host and path as a legible key prefix:
// an operator can purge "everything for this hostname" or "everything
// under this path" without knowing or reconstructing an exact cache key.
type AdminHandler struct {
	middleware  *Middleware
	store       store.Store
	keyGen      *KeyGenerator
	adminSecret string
}

// NewAdminHandler returns an AdminHandler guarding its endpoints with
// adminSecret. An empty secret disables authentication. keyGen supplies
// the host/path prefix rules for HandlePurgeHost and HandlePurgePath; a
// nil keyGen falls back to NewKeyGenerator's defaults.
func NewAdminHandler(middleware *Middleware, s store.Store, keyGen *KeyGenerator, adminSecret string) *AdminHandler {
	if keyGen == nil {
		keyGen = NewKeyGenerator()
	}
	return &AdminHandler{middleware: middleware, store: s, keyGen: keyGen, adminSecret: adminSecret}
}

func (ah *AdminHandler) authenticate(r *http.Request) bool {
	if ah.adminSecret == "" {
		return true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == ah.adminSecret
	}
	return r.URL.Query().Get("secret") == ah.adminSecret
}

// HandlePurge removes a single cache entry by key.
func (ah *AdminHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if !ah.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body")
		return
	}
	if req.Key == "" {
		sendError(w, "Key is required")
		return
	}

	if err := ah.store.Delete(r.Context(), req.Key); err != nil {
		sendError(w, "Failed to purge cache: "+err.Error())
		return
	}

	sendJSON(w, map[string]any{
		"success": true,
		"message": "Cache entry purged successfully",
		"key":     req.Key,
	})
}

// HandlePurgePrefix removes every cache entry whose key starts with
// the given prefix.
func (ah *AdminHandler) HandlePurgePrefix(w http.ResponseWriter, r *http.Request) {
	if !ah.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Prefix string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body")
		return
	}
	if req.Prefix == "" {
		sendError(w, "Prefix is required")
		return
	}

	if err := ah.store.PurgePrefix(r.Context(), req.Prefix); err != nil {
		sendError(w, "Failed to purge cache prefix: "+err.Error())
		return
	}

	sendJSON(w, map[string]any{
		"success": true,
		"message": "Cache entries purged successfully",
		"prefix":  req.Prefix,
	})
}

// HandlePurgeHost removes every cache entry for a hostname, independent
// of path, query string, or Vary variant. It derives the PurgePrefix
// argument from the same KeyGenerator the Middleware uses, so it matches
// exactly the entries that generator would have produced keys for.
func (ah *AdminHandler) HandlePurgeHost(w http.ResponseWriter, r *http.Request) {
	if !ah.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Host string `json:"host"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body")
		return
	}
	if req.Host == "" {
		sendError(w, "Host is required")
		return
	}

	prefix := ah.keyGen.HostPrefix(req.Host)
	if err := ah.store.PurgePrefix(r.Context(), prefix); err != nil {
		sendError(w, "Failed to purge cache for host: "+err.Error())
		return
	}

	sendJSON(w, map[string]any{
		"success": true,
		"message": "Cache entries purged for host",
		"host":    req.Host,
	})
}

// HandlePurgePath removes every cache entry for a host under a given
// path prefix, independent of query string or Vary variant. Like
// HandlePurgeHost, it delegates the actual prefix computation to the
// Middleware's KeyGenerator rather than asking the caller to guess the
// internal key layout.
func (ah *AdminHandler) HandlePurgePath(w http.ResponseWriter, r *http.Request) {
	if !ah.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Host string `json:"host"`
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body")
		return
	}
	if req.Host == "" || req.Path == "" {
		sendError(w, "Host and path are required")
		return
	}

	prefix := ah.keyGen.PathPrefix(req.Host, req.Path)
	if err := ah.store.PurgePrefix(r.Context(), prefix); err != nil {
		sendError(w, "Failed to purge cache for path: "+err.Error())
		return
	}

	sendJSON(w, map[string]any{
		"success": true,
		"message": "Cache entries purged for path",
		"host":    req.Host,
		"path":    req.Path,
	})
}

// HandleStatus reports middleware counters and configuration.
func (ah *AdminHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !ah.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := ah.middleware.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	sendJSON(w, map[string]any{
		"enabled": ah.middleware.config.Enabled,
		"backend": backendType(ah.store),
		"stats": map[string]any{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"puts":     stats.Puts,
			"errors":   stats.Errors,
			"bypasses": stats.Bypasses,
			"hit_rate": hitRate,
		},
		"config": map[string]any{
			"optimization_mode": ah.middleware.config.OptimizationMode,
			"default_ttl":       ah.middleware.config.DefaultTTL.String(),
			"max_cache_size":    ah.middleware.config.MaxCacheSize,
		},
	})
}

// HandleBan issues a Varnish BAN, either a raw expression or a key
// prefix. It returns an error for any other backend.
func (ah *AdminHandler) HandleBan(w http.ResponseWriter, r *http.Request) {
	if !ah.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vs, ok := ah.store.(*store.VarnishStore)
	if !ok {
		sendError(w, "BAN is only supported for Varnish backend")
		return
	}

	var req struct {
		Expression string `json:"expression"`
		Prefix     string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body")
		return
	}

	var err error
	switch {
	case req.Expression != "":
		err = vs.Ban(r.Context(), req.Expression)
	case req.Prefix != "":
		err = ah.store.PurgePrefix(r.Context(), req.Prefix)
	default:
		sendError(w, "Either expression or prefix is required")
		return
	}
	if err != nil {
		sendError(w, "Failed to execute BAN: "+err.Error())
		return
	}

	sendJSON(w, map[string]any{
		"success":    true,
		"message":    "BAN executed successfully",
		"expression": req.Expression,
		"prefix":     req.Prefix,
	})
}

func backendType(s store.Store) string {
	switch s.(type) {
	case *store.FSStore:
		return "filesystem"
	case *store.RedisStore:
		return "redis"
	case *store.VarnishStore:
		return "varnish"
	default:
		return "unknown"
	}
}

func sendJSON(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func sendError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
