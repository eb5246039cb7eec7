package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/discovery"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/version"
)

// Routes served by the demo backend.
const (
	RouteAuthenticate    = "/web/session/authenticate"
	RouteVersionInfo     = "/web/webclient/version_info"
	RouteBarcodeData     = "/stock_barcode/get_barcode_data"
	RouteSpecificBarcode = "/stock_barcode/get_specific_barcode_data"
	RouteSaveBarcodeData = "/stock_barcode/save_barcode_data"
	RouteRunAction       = "/stock_barcode/run_action"
	RouteCallKW          = "/web/dataset/call_kw/*path"
	HealthPath           = "/healthz"

	sessionCookie = "session_id"
	demoUID       = 2
)

// Options configure the demo backend.
type Options struct {
	// Database, Login and Password are checked on authentication when Login
	// is set. An empty Password accepts any password.
	Database string
	Login    string
	Password string

	// Instance advertises the backend over mDNS when set.
	Instance string
}

// Server is a demo stock backend speaking JSON-RPC over HTTP.
type Server struct {
	store  *Store
	opts   Options
	engine *gin.Engine

	mu       sync.Mutex
	sessions map[string]int64
}

// NewServer serves store.
func NewServer(store *Store, opts Options) *Server {
	s := &Server{
		store:    store,
		opts:     opts,
		engine:   gin.New(),
		sessions: make(map[string]int64),
	}
	s.engine.Use(gin.Recovery(), requestLogger())

	s.engine.POST(RouteAuthenticate, s.rpc(s.authenticate))
	s.engine.POST(RouteVersionInfo, s.rpc(s.versionInfo))
	s.engine.GET(HealthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})

	api := s.engine.Group("/", s.requireSession())
	api.POST(RouteBarcodeData, s.rpc(s.barcodeData))
	api.POST(RouteSpecificBarcode, s.rpc(s.specificBarcode))
	api.POST(RouteSaveBarcodeData, s.rpc(s.saveBarcodeData))
	api.POST(RouteRunAction, s.rpc(s.runAction))
	api.POST(RouteCallKW, s.rpc(s.callKW))
	return s
}

// Handler returns the backend's routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	logging.Info("Starting demo backend",
		zap.String("addr", listener.Addr().String()),
		zap.String("version", version.Version),
	)

	if s.opts.Instance != "" {
		port := listener.Addr().(*net.TCPAddr).Port
		ad, err := discovery.Advertise(discovery.KindBackend, s.opts.Instance, port,
			map[string]string{"db": s.opts.Database, "version": version.Version})
		if err != nil {
			logging.Warn("mDNS advertisement failed, continuing without it", zap.Error(err))
		}
		defer ad.Stop()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	logging.Info("Shutting down demo backend...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      any             `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type rpcErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type rpcError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    rpcErrorData `json:"data"`
}

type handlerFunc func(c *gin.Context, params json.RawMessage) (any, error)

// rpc unwraps a JSON-RPC call for h and wraps its result or error.
func (s *Server) rpc(h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rpcRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON-RPC request: " + err.Error()})
			return
		}
		result, err := h(c, req.Params)
		if err != nil {
			writeError(c, req.ID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
}

func writeError(c *gin.Context, id any, err error) {
	code, data := 200, rpcErrorData{Name: "builtins.Exception", Message: err.Error()}
	var be *Error
	if errors.As(err, &be) {
		data.Name = be.Name
		if be.Name == ErrNameSessionExpired {
			code = 100
		}
	}
	logging.Debug("Backend call rejected",
		zap.String("path", c.Request.URL.Path),
		zap.String("name", data.Name),
		zap.String("message", data.Message),
	)
	c.JSON(http.StatusOK, gin.H{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   rpcError{Code: code, Message: "Server Error", Data: data},
	})
}

func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Login == "" {
			c.Next()
			return
		}
		sid, err := c.Cookie(sessionCookie)
		s.mu.Lock()
		_, ok := s.sessions[sid]
		s.mu.Unlock()
		if err != nil || !ok {
			writeError(c, nil, &Error{Name: ErrNameSessionExpired, Message: "Session expired"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.LogHTTPRequest(c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start))
	}
}

func decode(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return userError("Invalid parameters: %v", err)
	}
	return nil
}

func (s *Server) authenticate(c *gin.Context, params json.RawMessage) (any, error) {
	var p struct {
		DB       string `json:"db"`
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if s.opts.Login != "" {
		if p.Login != s.opts.Login ||
			(s.opts.Password != "" && p.Password != s.opts.Password) ||
			(s.opts.Database != "" && p.DB != s.opts.Database) {
			return nil, &Error{Name: ErrNameAccessDenied, Message: "Access Denied"}
		}
	}

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = demoUID
	s.mu.Unlock()
	c.SetCookie(sessionCookie, sid, 0, "/", "", false, true)

	return map[string]any{
		"uid":            demoUID,
		"name":           "Demo Operator",
		"db":             p.DB,
		"user_context":   map[string]any{"lang": "en_US", "tz": "UTC"},
		"server_version": serverVersion(),
	}, nil
}

func (s *Server) versionInfo(c *gin.Context, params json.RawMessage) (any, error) {
	return map[string]any{
		"server_version":   serverVersion(),
		"protocol_version": 1,
	}, nil
}

func serverVersion() string {
	return "demo-" + version.Version
}

func (s *Server) barcodeData(c *gin.Context, params json.RawMessage) (any, error) {
	var p struct {
		Model string `json:"model"`
		ResID any    `json:"res_id"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return s.store.BarcodeData(p.Model, toID(p.ResID))
}

func (s *Server) specificBarcode(c *gin.Context, params json.RawMessage) (any, error) {
	var p struct {
		Barcode string `json:"barcode"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return s.store.SpecificBarcode(p.Barcode), nil
}

func (s *Server) saveBarcodeData(c *gin.Context, params json.RawMessage) (any, error) {
	var p struct {
		Model     string `json:"model"`
		ResID     any    `json:"res_id"`
		WriteVals []any  `json:"write_vals"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return s.store.Save(p.Model, toID(p.ResID), p.WriteVals)
}

func (s *Server) runAction(c *gin.Context, params json.RawMessage) (any, error) {
	var p struct {
		Action map[string]any `json:"action"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return s.store.RunAction(p.Action)
}

func (s *Server) callKW(c *gin.Context, params json.RawMessage) (any, error) {
	var p struct {
		Model  string         `json:"model"`
		Method string         `json:"method"`
		Args   []any          `json:"args"`
		Kwargs map[string]any `json:"kwargs"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	arg := func(i int) any {
		if i < len(p.Args) {
			return p.Args[i]
		}
		return nil
	}
	firstID := func() int64 {
		if ids := toIDs(arg(0)); len(ids) > 0 {
			return ids[0]
		}
		return 0
	}

	switch p.Model + "/" + p.Method {
	case modelProduct + "/search_read":
		return s.searchRead(arg(0), p.Kwargs)
	case modelPicking + "/button_validate":
		return s.store.ValidatePicking(firstID())
	case modelPicking + "/action_put_in_pack":
		return s.store.PutInPack(firstID())
	case modelPicking + "/action_return_from_barcode":
		return s.store.ReturnAction(firstID())
	case modelPicking + "/action_cancel_from_barcode":
		return s.store.CancelAction(firstID())
	case modelQuant + "/action_apply_all":
		return s.store.ApplyCounts(toIDs(arg(0)))
	}

	if p.Model == modelMoveLine || p.Model == modelQuant {
		switch p.Method {
		case "write":
			vals, _ := arg(1).(map[string]any)
			for _, id := range toIDs(arg(0)) {
				if err := s.store.WriteLine(p.Model, id, vals); err != nil {
					return nil, err
				}
			}
			return true, nil
		case "create":
			vals, _ := arg(0).(map[string]any)
			return s.store.CreateLine(p.Model, vals)
		case "unlink":
			ids := toIDs(arg(0))
			if len(ids) == 0 {
				return nil, userError("Nothing to delete.")
			}
			if err := s.store.UnlinkLines(p.Model, ids); err != nil {
				return nil, err
			}
			return true, nil
		}
	}
	return nil, userError("%s.%s is not available on the demo backend.", p.Model, p.Method)
}

// searchRead supports the product name search: a domain of one
// [field, operator, term] condition.
func (s *Server) searchRead(domain any, kwargs map[string]any) (any, error) {
	var term string
	if conds, ok := domain.([]any); ok && len(conds) > 0 {
		if cond, ok := conds[0].([]any); ok && len(cond) == 3 {
			term, _ = cond[2].(string)
		}
	}
	limit := int(toID(kwargs["limit"]))

	rows := []map[string]any{}
	for _, p := range s.store.SearchProducts(term, limit) {
		rows = append(rows, map[string]any{"id": p.ID, "display_name": p.Name})
	}
	return rows, nil
}
