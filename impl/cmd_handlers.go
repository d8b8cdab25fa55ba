package impl

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// message is the body of a control message
type message struct {
	Message string `json:"message"`
}

// GET /cmd/stop
func (s *ShellCache) CmdStop(ctx echo.Context) error {
	s.shutdownCh <- true
	return ctx.String(http.StatusOK, "stopping\n")
}

// POST /cmd/message with body {"message": "skipWaiting"} or {"message": "downloadOffline"}
func (s *ShellCache) CmdMessage(ctx echo.Context) error {
	var msg message
	if err := ctx.Bind(&msg); err != nil || msg.Message == "" {
		return ctx.String(http.StatusBadRequest, "expected a JSON body like {\"message\": \"skipWaiting\"}\n")
	}
	if err := s.rt.Message(ctx.Request().Context(), msg.Message); err != nil {
		log.Errorf("message %q failed: %s", msg.Message, err)
		return ctx.String(http.StatusInternalServerError, err.Error()+"\n")
	}
	return ctx.String(http.StatusOK, "ok\n")
}

// GET /health
func (s *ShellCache) Health(ctx echo.Context) error {
	return ctx.NoContent(http.StatusOK)
}
