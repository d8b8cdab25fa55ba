// Package mock runs a mock origin web server for unit tests. The server serves a
// fixed set of paths (a tiny web application shell) and can be switched into
// failure modes at runtime: connection refused (the origin is down) or HTTP 500
// for every request. A callback receives every request path so tests can count
// network fetches. The package also generates throwaway TLS material.
package mock
