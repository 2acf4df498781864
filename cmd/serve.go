package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/jsphweid/accompanist/config"
	"github.com/jsphweid/accompanist/detect"
	"github.com/jsphweid/accompanist/event"
	"github.com/jsphweid/accompanist/logging"
	"github.com/jsphweid/accompanist/model"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/session"
	"github.com/jsphweid/accompanist/util"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

// audio frames arrive as JSON arrays of floats
const maxMessageBytes = 16 << 20

var (
	configPath string
	servePort  int
	serveKey   string
	serveTempo int
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "key sessions start in (overrides config)")
	serveCmd.Flags().IntVar(&serveTempo, "tempo", 0, "tempo sessions start at (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the accompaniment websocket and REST API",
	Long: `Serves the accompaniment engine. Clients connect to /ws and send
start_listening, audio_data and request_chord events; each gets exactly
one response, in order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyServeFlags(cfg); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// applyServeFlags lays the command line over the loaded config.
func applyServeFlags(cfg *config.Config) error {
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveKey != "" {
		cfg.Session.Key = serveKey
	}
	if serveTempo != 0 {
		cfg.Session.Tempo = serveTempo
	}
	if tokens := util.SplitList(progressionFlag); len(tokens) > 0 {
		cfg.Session.Progression = tokens
	}
	return cfg.Validate()
}

func NewHandler(cfg *config.Config, logger hclog.Logger) (*event.Handler, error) {
	logger = logging.OrNull(logger)
	store, err := session.NewStore(session.Defaults{
		Progression: cfg.Progression(),
		Key:         cfg.Key(),
		Tempo:       cfg.Session.Tempo,
	}, logger.Named("session"))
	if err != nil {
		return nil, err
	}
	return event.NewHandler(store, event.Options{
		Detector:      detect.NewChromaDetector(logger),
		SampleRate:    cfg.Detection.SampleRate,
		WindowSeconds: cfg.Detection.WindowSeconds,
		Logger:        logger,
	}), nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New("accompanist", cfg.LogLevel)
	h, err := NewHandler(cfg, logger)
	if err != nil {
		return err
	}

	go sweep(ctx, h, time.Duration(cfg.Session.IdleMinutes)*time.Minute)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: NewRouter(h, cfg.AllowedOrigins, logger),
	}
	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "key", cfg.Session.Key, "tempo", cfg.Session.Tempo, "progression", cfg.Progression().String())
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweep(ctx context.Context, h *event.Handler, maxIdle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range h.Store().Sweep(maxIdle) {
				h.Forget(id)
			}
		}
	}
}

type server struct {
	handler  *event.Handler
	logger   hclog.Logger
	upgrader websocket.Upgrader
}

func NewRouter(h *event.Handler, allowedOrigins []string, logger hclog.Logger) http.Handler {
	s := &server{
		handler: h,
		logger:  logging.OrNull(logger).Named("http"),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/progression", s.handleProgression).Methods("GET")
	router.HandleFunc("/ws", s.handleSocket).Methods("GET")
	router.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	router.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	router.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	router.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/start", s.handleStart).Methods("POST")
	router.HandleFunc("/sessions/{id}/audio", s.handleAudio).Methods("POST")
	router.HandleFunc("/sessions/{id}/chord", s.handleChord).Methods("POST")
	router.HandleFunc("/sessions/{id}/ws", s.handleSessionSocket).Methods("GET")

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
	}).Handler(router)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := event.StatusCode(err)
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: err.Error()})
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.handler.Store().Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func decodeBody(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", event.ErrBadPayload, err)
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.handler.Store().Len()})
}

func (s *server) handleProgression(w http.ResponseWriter, r *http.Request) {
	d := s.handler.Store().Defaults()
	key := d.Key
	if name := r.URL.Query().Get("key"); name != "" {
		k, err := pitch.Parse(name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		key = k
	}
	writeJSON(w, http.StatusOK, event.ProgressionIn(d.Progression, key))
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.handler.Store().Create()
	writeJSON(w, http.StatusCreated, model.SessionCreated{ID: sess.ID()})
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.SessionList{Sessions: s.handler.Store().List()})
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, event.Overview(sess.Snapshot()))
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.handler.Store().Delete(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.handler.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.handler.StartListening(sess))
}

func (s *server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var data model.AudioData
	if err := decodeBody(r, &data); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.handler.AudioData(r.Context(), sess, data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleChord(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req model.ChordRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.handler.RequestChord(sess, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSocket gives the connection a session of its own, dropped on close.
func (s *server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := s.handler.Store().Create()
	defer func() {
		s.handler.Store().Delete(sess.ID())
		s.handler.Forget(sess.ID())
	}()

	hello, _ := model.NewEnvelope(model.EventSession, model.SessionCreated{ID: sess.ID()})
	if err := conn.WriteJSON(hello); err != nil {
		return
	}
	s.pump(r.Context(), conn, sess)
}

func (s *server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.pump(r.Context(), conn, sess)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// pump handles one event at a time so responses leave in request order.
func (s *server) pump(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	conn.SetReadLimit(maxMessageBytes)
	logger := s.logger.With("session", sess.ID())
	logger.Info("client connected", "remote", conn.RemoteAddr().String())

	for {
		var in model.Envelope
		if err := conn.ReadJSON(&in); err != nil {
			if isDecodeError(err) {
				if werr := conn.WriteJSON(event.ErrorEnvelope(fmt.Errorf("%w: %v", event.ErrBadPayload, err))); werr != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", "error", err)
			}
			logger.Info("client disconnected")
			return
		}

		out := s.handler.Dispatch(ctx, sess, in)
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}
