package subcmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aceeric/shellcache/impl"
	"github.com/aceeric/shellcache/impl/config"
	"github.com/aceeric/shellcache/impl/globals"
	"github.com/aceeric/shellcache/impl/metrics"
	"github.com/aceeric/shellcache/impl/worker"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const startupBanner = `----------------------------------------------------------------------
Shellcache: offline-capable, versioned caching gateway
Version: %s, build date: %s
Started: %s (port %d)
Running as (uid:gid) %d:%d
Process id: %d
Origin: %s
Manifest: %s (version %s)
Config file: %s
Store: %s at %s
Tls: %s
Command line: %v
----------------------------------------------------------------------
`

// listener will be initialized with the Echo listener once the Echo server
// is started.
var listener net.Listener

// Serve runs the gateway, blocking until stopped via the command REST API.
func Serve(buildVer string, buildDtm string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	tlsCfg, err := globals.ParseTls()
	if err != nil {
		return fmt.Errorf("error parsing TLS configuration: %s", err)
	}
	originUrl, err := url.Parse(config.GetOrigin().Url)
	if err != nil {
		return fmt.Errorf("error parsing origin url: %s", err)
	}
	f, err := newFetcher(0)
	if err != nil {
		return err
	}
	originTls, err := config.OriginTls()
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	metrics.InitMetrics(config.GetMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := newRuntime(s, f)
	if err != nil {
		return err
	}
	if _, err := rt.Restore(m); err != nil {
		log.Errorf("unable to restore the cached version: %s", err)
	}
	// a failed install leaves the previous version (if any) serving
	if err := rt.Register(ctx, m); err != nil {
		log.Errorf("version %s is not serving: %s", m.Version(), err)
	}
	if config.GetWatchManifest() {
		if err := worker.WatchManifest(ctx, config.GetManifestFile(), rt); err != nil {
			return fmt.Errorf("error watching the manifest file: %s", err)
		}
	}

	shutdownCh := make(chan bool)
	shellCache := impl.NewShellCache(rt, shutdownCh)

	// Echo router
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(globals.GetEchoLoggingFunc())

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if originTls != nil {
		transport.TLSClientConfig = originTls
	}
	shellCache.RegisterHandlers(e, originUrl, transport)

	fmt.Fprintf(os.Stderr, startupBanner, buildVer, buildDtm, time.Unix(0, time.Now().UnixNano()), config.GetPort(),
		os.Getuid(), os.Getgid(), os.Getpid(), originUrl, config.GetManifestFile(), m.Version(), configFileMsg(),
		config.GetStoreType(), config.GetCachePath(), globals.TlsMsg(), strings.Join(os.Args, " "))

	go health()

	// start the API server
	go func() {
		addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(config.GetPort())))
		if tlsCfg != nil {
			s := http.Server{
				Addr:      addr,
				Handler:   e,
				TLSConfig: tlsCfg,
			}
			if err := e.StartServer(&s); err != http.ErrServerClosed {
				e.Logger.Fatal("shutting down the server. error:", err)
			}
		} else {
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				e.Logger.Fatal("shutting down the server. error:", err)
			}
		}
	}()
	err = waitForEchoListener(e)
	if err != nil {
		return errors.New("timed out waiting for Echo listener")
	}
	listener = getEchoListener(e)
	log.Info("server is running")

	<-shutdownCh
	log.Infof("received stop command - stopping")
	e.Server.Shutdown(context.Background())
	log.Infof("stopped")
	return nil
}

// configFileMsg describes where the configuration came from for the banner
func configFileMsg() string {
	if config.GetConfigFile() == "" {
		return "none (command line only)"
	}
	return config.GetConfigFile()
}

// health handles the /health endpoint always on plain HTTP and is not part of the
// server itself, hence a separate goroutine running an http server.
func health() {
	if config.GetHealth() != 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		http.ListenAndServe(fmt.Sprintf(":%d", config.GetHealth()), mux)
	}
}

// getEchoListener gets the Echo listener. Supports unit testing.
func getEchoListener(e *echo.Echo) net.Listener {
	if e.Listener != nil {
		return e.Listener
	}
	return e.TLSListener
}

// waitForEchoListener waits for the Listener in the Echo server to be initialized. This
// is only used in unit testing so that the unit tests can start the server on ":0" and let
// the http package assign a random port number. Supports unit testing.
func waitForEchoListener(e *echo.Echo) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if e.Listener != nil || e.TLSListener != nil {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// GetListener supports unit testing.
func GetListener() net.Listener {
	return listener
}

// InitListener supports unit testing.
func InitListener() {
	listener = nil
}
