package globals

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const msg = "echo server %s:%s status=%d latency=%s host=%s ip=%s"

// cache-busting suffixes are usually long build hashes or timestamps
const srch = `\?v=([^&#]{8})[^&#]+`

var re = regexp.MustCompile(srch)

// ConfigureLogging sets the logger level and, if 'logFile' is non-empty, directs
// logging to that file rather than the console.
func ConfigureLogging(level string, logFile string) error {
	log.SetLevel(xlatLogLevel(level))
	log.SetFormatter(&log.TextFormatter{})
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}
	return nil
}

// xlatLogLevel translates the passed 'level' string to a logger const
func xlatLogLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "TRACE":
		return log.TraceLevel
	}
	return log.FatalLevel
}

// shortenUri truncates a '?v=' cache-busting value in the passed request URI to eight
// characters so the log stays readable.
func shortenUri(uri string) string {
	return re.ReplaceAllString(uri, "?v=$1")
}

// GetEchoLoggingFunc gets the gateway request logging function
func GetEchoLoggingFunc() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			// the health check is for k8s and would just clutter the log
			if req.RequestURI == "/health" {
				return nil
			}

			flds := make([]interface{}, 6)
			flds[0] = req.Method
			flds[1] = shortenUri(req.RequestURI)
			flds[2] = res.Status
			flds[3] = time.Since(start)
			flds[4] = req.Host
			flds[5] = c.RealIP()

			switch {
			case res.Status >= 500:
				log.Errorf(msg, flds...)
			case res.Status >= 400:
				log.Warnf(msg, flds...)
			default:
				log.Infof(msg, flds...)
			}
			return nil
		}
	}
}
