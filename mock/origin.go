package mock

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// Mode selects how the mock origin answers
type Mode int

const (
	// UP serves the configured files and 404 for everything else
	UP Mode = iota
	// DOWN drops every connection without a response so clients see a network error
	DOWN
	// BROKEN answers every request with a 500
	BROKEN
)

// Origin is a mock origin web server
type Origin struct {
	*httptest.Server
	mu       sync.Mutex
	mode     Mode
	files    map[string][]byte
	hits     map[string]int
	headers  map[string]http.Header
	callback func(string)
}

// ShellFiles returns a small application shell keyed by URL path
func ShellFiles() map[string]string {
	return map[string]string{
		"/":                                "<html>index</html>",
		"/index.html":                      "<html>index</html>",
		"/main.dart.js":                    "main();",
		"/flutter_bootstrap.js":            "bootstrap();",
		"/assets/AssetManifest.bin.json":   `{"assets":[]}`,
		"/assets/FontManifest.json":        `[]`,
		"/assets/assets/images/logo.png":   "PNG-logo",
		"/assets/assets/data/courses.json": `{"courses":[]}`,
		"/assets/fonts/MaterialIcons.otf":  "OTF-icons",
		"/canvaskit/canvaskit.wasm":        "WASM-canvaskit",
		"/manifest.json":                   `{"name":"app"}`,
		"/version.json":                    `{"version":"1.0.0"}`,
		"/api/v1/quotes":                   `{"quotes":[]}`,
	}
}

// NewOrigin starts a mock origin serving the passed files (URL path -> content). If
// a callback is passed, it is invoked with the URL path of every request.
func NewOrigin(files map[string]string, callback func(string)) *Origin {
	o := &Origin{
		files:    make(map[string][]byte),
		hits:     make(map[string]int),
		headers:  make(map[string]http.Header),
		callback: callback,
	}
	for path, content := range files {
		o.files[path] = []byte(content)
	}
	o.Server = httptest.NewServer(http.HandlerFunc(o.handle))
	return o
}

func (o *Origin) handle(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	mode := o.mode
	path := r.URL.Path
	o.hits[path]++
	o.headers[path] = r.Header.Clone()
	body, exists := o.files[path]
	callback := o.callback
	o.mu.Unlock()

	if callback != nil {
		callback(path)
	}
	switch mode {
	case DOWN:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	case BROKEN:
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// SetMode switches the origin between UP, DOWN and BROKEN
func (o *Origin) SetMode(mode Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
}

// SetFile adds or replaces the content served at 'path' (a new deployment)
func (o *Origin) SetFile(path string, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[path] = []byte(content)
}

// RemoveFile stops serving 'path'
func (o *Origin) RemoveFile(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.files, path)
}

// Hits returns the number of requests received for 'path'
func (o *Origin) Hits(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// TotalHits returns the number of requests received for all paths
func (o *Origin) TotalHits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, cnt := range o.hits {
		total += cnt
	}
	return total
}

// ResetHits zeroes the request counters
func (o *Origin) ResetHits() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits = make(map[string]int)
}

// LastHeader returns the request headers of the most recent request for 'path'
func (o *Origin) LastHeader(path string) http.Header {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.headers[path]
}
