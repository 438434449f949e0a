package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veritube/veritube-agent/internal/cache"
)

const maxCacheValueBytes = 10 << 20

func cacheGetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		value, err := cfg.Cache.Get(r.Context(), key)
		if errors.Is(err, cache.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "key not found", "NOT_FOUND")
			return
		}
		if err != nil {
			cfg.Logger.Error("cache get failed", "key", key, "error", err)
			WriteError(w, http.StatusInternalServerError, "cache read failed", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, CacheValueResponse{Key: key, Value: value})
	}
}

// cacheSetHandler stores the request body under key. A body that is not JSON
// is stored as a JSON string.
func cacheSetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		var ttl time.Duration
		expire := 0
		if v := r.URL.Query().Get("expire"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "expire must be a positive number of seconds", "BAD_REQUEST")
				return
			}
			expire = n
			ttl = time.Duration(n) * time.Second
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCacheValueBytes))
		if err != nil {
			WriteError(w, http.StatusRequestEntityTooLarge, "value too large", "BAD_REQUEST")
			return
		}

		value := json.RawMessage(body)
		if len(body) == 0 || !json.Valid(body) {
			value, _ = json.Marshal(string(body))
		}

		if err := cfg.Cache.Set(r.Context(), key, value, ttl); err != nil {
			cfg.Logger.Error("cache set failed", "key", key, "error", err)
			WriteError(w, http.StatusInternalServerError, "cache write failed", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, CacheSetResponse{Status: "ok", Key: key, Expire: expire})
	}
}

func cacheDeleteHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		n, err := cfg.Cache.Delete(r.Context(), key)
		if err != nil {
			cfg.Logger.Error("cache delete failed", "key", key, "error", err)
			WriteError(w, http.StatusInternalServerError, "cache delete failed", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, CacheDeleteResponse{Key: key, Deleted: n > 0})
	}
}
