package test

import (
	"context"
	"net/http"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/middleware"
)

// Guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goSession.New
	_ = goSession.DefaultConfig
	_ = goSession.NewHandler

	var _ *goSession.Manager
	var _ *goSession.Handler
	var _ *goSession.Session
	var _ goSession.Config
	var _ goSession.AuditSink
	var _ container.Provider
	var _ container.Container

	var _ error = goSession.ErrInvalidConfig
	var _ error = goSession.ErrNotOpen
	var _ error = goSession.ErrReadOnly
	var _ error = goSession.ErrSessionClosed
	var _ error = goSession.ErrIDSpaceExhausted

	var _ func(context.Context, http.ResponseWriter, *http.Request) (*goSession.Session, error) = (*goSession.Manager)(nil).Start
	var _ func(*goSession.Manager, middleware.Mode) func(http.Handler) http.Handler = middleware.Session
}
