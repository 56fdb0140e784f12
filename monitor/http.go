// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package monitor

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	assetfs "github.com/elazarl/go-bindata-assetfs"
	"github.com/golang/glog"
	"github.com/stephens2424/writerset"

	"github.com/bradleyjkemp/babyfuzz/fuzzer"
)

//go:embed assets
var assets embed.FS

// HTTP streams stats to browsers as server-sent events on /eventsource and
// serves a page rendering them on /.
type HTTP struct {
	statsWriters *writerset.WriterSet
	mux          *http.ServeMux
}

var _ fuzzer.Monitor = (*HTTP)(nil)

func NewHTTP() *HTTP {
	h := &HTTP{
		statsWriters: writerset.New(),
		mux:          http.NewServeMux(),
	}
	h.mux.HandleFunc("/eventsource", h.eventSource)
	h.mux.HandleFunc("/", h.index)
	return h
}

func (h *HTTP) Handler() http.Handler { return h.mux }

func (h *HTTP) Display(s fuzzer.Stats) {
	b, err := json.Marshal(s)
	if err != nil {
		glog.Warningf("failed to marshal stats: %v", err)
		return
	}
	fmt.Fprintf(h.statsWriters, "event: ping\ndata: %s\n\n", b)
	h.statsWriters.Flush()
}

func (h *HTTP) eventSource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	select {
	case <-h.statsWriters.Add(w):
	case <-r.Context().Done():
		h.statsWriters.Remove(w)
	}
}

func (h *HTTP) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		r.URL.Path = "/stats.html"
	}
	http.FileServer(assetFS()).ServeHTTP(w, r)
}

func assetFS() *assetfs.AssetFS {
	return &assetfs.AssetFS{
		Asset: assets.ReadFile,
		AssetDir: func(name string) ([]string, error) {
			entries, err := fs.ReadDir(assets, name)
			if err != nil {
				return nil, err
			}
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name()
			}
			return names, nil
		},
		AssetInfo: func(name string) (os.FileInfo, error) {
			return fs.Stat(assets, name)
		},
		Prefix: "assets",
	}
}
