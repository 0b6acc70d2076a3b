package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hotswap"
	"hotswap/internal/storage"
)

type SettingsHandler struct {
	Val *hotswap.Value[storage.Settings]
}

func NewSettingsHandler(val *hotswap.Value[storage.Settings]) *SettingsHandler {
	return &SettingsHandler{Val: val}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type settingsResponse struct {
	Version  string            `json:"version"`
	LoadedAt string            `json:"loaded_at"`
	Values   map[string]string `json:"values"`
}

type settingResponse struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version string `json:"version"`
}

// All serves the whole published snapshot. The snapshot's fingerprint acts
// as ETag, so pollers pay nothing while the table is unchanged.
func (h *SettingsHandler) All(w http.ResponseWriter, r *http.Request) {
	snap := h.Val.Load()
	defer snap.Release()
	set := snap.Get()

	etag := set.ETag()
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Version:  etag,
		LoadedAt: set.LoadedAt.Format(http.TimeFormat),
		Values:   set.Values,
	})
}

// One serves a single key from the published snapshot.
func (h *SettingsHandler) One(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	snap := h.Val.Load()
	defer snap.Release()
	set := snap.Get()

	val, ok := set.Values[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown setting: " + key})
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: val, Version: set.ETag()})
}
