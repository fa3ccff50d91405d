package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/you-win/sometimes-youwin-bot/internal/command"
)

// maxCommandBytes bounds the request body; commands are chat-sized.
const maxCommandBytes = 4096

const noOutputReply = "No output!"

// handleCommand runs one dispatched command for an authenticated caller. The
// HTTP platform carries no chat identity: no display name, no multi-line
// frames, no scripting. Antispam does not apply, the key gate is the
// admission control here.
func (s *Server) handleCommand(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCommandBytes))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	sender := command.Sender{Platform: command.PlatformHTTP}
	out := s.dispatcher.Dispatch(string(body), sender, s.store.Snapshot())

	return c.String(http.StatusOK, out.ReplyOrDefault(noOutputReply))
}
