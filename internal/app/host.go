package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
)

// ServeHost pumps the bridge until the host goes away or ctx ends. The host
// is read from r and written to w unless a bridge address is configured, in
// which case it attaches over a websocket. With an MCP address, the MCP
// server listens alongside for the same run.
func (a *App) ServeHost(ctx context.Context, r io.Reader, w io.Writer) error {
	if a.bridge == nil {
		return errors.New("app was built without the host bridge")
	}

	if addr := a.cfg.MCPAddr; addr != "" {
		httpSrv := a.mcp.NewHTTPServer()
		go func() {
			log.Printf("[MCP] streamable HTTP on %s", addr)
			if err := httpSrv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[MCP] http server: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				log.Printf("[MCP] http shutdown: %v", err)
			}
		}()
	}

	if addr := a.cfg.BridgeAddr; addr != "" {
		return a.serveBridgeWS(ctx, addr)
	}
	return a.bridge.Serve(ctx, r, w)
}

func (a *App) serveBridgeWS(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", a.bridge.ServeWebSocket)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Bridge] websocket on %s/bridge", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
