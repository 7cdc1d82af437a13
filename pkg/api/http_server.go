package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/core"
	"distritree/pkg/logging"
	"distritree/pkg/model"
	"distritree/pkg/storage"
)

// Engine is the part of core.TreeIndex the HTTP layer drives.
type Engine interface {
	core.Index
	Subscribe(fn func(core.Event))
	Records() ([]storage.Record, error)
}

type Server struct {
	engine Engine
	hub    *Hub
	logger *zap.Logger
	http   *http.Server
}

func NewServer(engine Engine, logger *zap.Logger) *Server {
	logger = logging.Named(logger, "api")
	s := &Server{
		engine: engine,
		hub:    NewHub(logger),
		logger: logger,
	}
	engine.Subscribe(s.hub.PublishEvent)
	return s
}

// Routes returns the handler serving every endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/insert", s.handleInsert)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/range", s.handleRange)
	mux.HandleFunc("/tree", s.handleTree)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/ws", s.hub.ServeWs)
	return withCORS(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Hub exposes the websocket hub so callers can run it without Start.
func (s *Server) Hub() *Hub { return s.hub }

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// fail maps engine errors to a status code.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, core.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	if errors.Is(err, core.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func parseKey(r *http.Request, name string) (common.KeyType, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.Newf("%s is required", name)
	}
	k, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Newf("%s must be an integer", name)
	}
	return common.KeyType(k), nil
}

// parseOptimized defaults to the indexed path.
func parseOptimized(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("optimized")
	if raw == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("optimized must be true or false")
	}
	return v, nil
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req model.InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Key == nil || req.Value == nil || *req.Value == "" {
		writeError(w, http.StatusBadRequest, "key and value are required")
		return
	}

	out, err := s.engine.Insert(*req.Key, common.ValueType(*req.Value))
	if err != nil {
		s.fail(w, "insert", err)
		return
	}

	writeJSON(w, http.StatusOK, model.NewInsertResponse(out))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	key, err := parseKey(r, "key")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	optimized, err := parseOptimized(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.engine.Search(key, optimized)
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewSearchResponse(out))
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	start, err := parseKey(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseKey(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start > end {
		writeError(w, http.StatusBadRequest, "start must not be greater than end")
		return
	}
	optimized, err := parseOptimized(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.engine.Range(start, end, optimized)
	if err != nil {
		s.fail(w, "range", err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewRangeResponse(out))
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.engine.Snapshot()
	if err != nil {
		s.fail(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.engine.Reset(); err != nil {
		s.fail(w, "clear", err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewClearResponse())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats := s.engine.Stats()
	stats["ws_clients"] = s.hub.Clients()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	records, err := s.engine.Records()
	if err != nil {
		s.fail(w, "export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment;filename=distritree_records.csv")

	cw := csv.NewWriter(w)
	cw.Write([]string{"record_id", "key", "value", "node_id", "shard", "timestamp"})
	for _, rec := range records {
		cw.Write([]string{
			rec.RecordID,
			strconv.FormatInt(int64(rec.Key), 10),
			string(rec.Value),
			rec.NodeID.String(),
			strconv.Itoa(rec.Shard),
			rec.Timestamp.Format(time.RFC3339Nano),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn("export write failed", zap.Error(err))
	}
}
