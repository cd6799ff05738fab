package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"tracker-codec/internal/payload"
	"tracker-codec/internal/pipeline"
	"tracker-codec/internal/store"
	"tracker-codec/internal/uplink"
)

const (
	maxBodyBytes = 64 * 1024
	defaultLimit = 20
)

type DecodeRequest struct {
	Payload  string            `json:"payload"`
	FPort    payload.FramePort `json:"f_port"`
	DevEUI   string            `json:"dev_eui,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	FlagSet  string            `json:"flag_set,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// DecodeHandler analiza un payload sin guardarlo. Encoding y flag set
// explícitos tienen prioridad sobre la configuración del dispositivo.
func (srv *Server) DecodeHandler(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var opts []payload.Option
	if srv.resolve != nil && req.DevEUI != "" {
		opts = append(opts, srv.resolve(strings.ToLower(req.DevEUI))...)
	}
	if req.Encoding != "" {
		enc, err := payload.ParseCoordinateEncoding(req.Encoding)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, payload.WithCoordinateEncoding(enc))
	}
	if req.FlagSet != "" {
		fs, err := payload.ParseFlagSet(req.FlagSet)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, payload.WithFlagSet(fs))
	}

	analysis, err := payload.Analyze(req.Payload, req.FPort, opts...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// IngestHandler pasa un uplink por el pipeline completo.
func (srv *Server) IngestHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	rec, err := uplink.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tr, err := srv.proc.Process(r.Context(), rec)
	switch {
	case errors.Is(err, pipeline.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payload.ErrMalformedPayload):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		srv.log.WithError(err).Error("ingest failed")
		writeError(w, http.StatusInternalServerError, "ingest failed")
	default:
		writeJSON(w, http.StatusAccepted, tr)
	}
}

func (srv *Server) LastHandler(w http.ResponseWriter, r *http.Request) {
	if srv.last == nil {
		writeError(w, http.StatusServiceUnavailable, "last-state cache disabled")
		return
	}
	devEUI := strings.ToLower(mux.Vars(r)["dev_eui"])
	tr, err := srv.last.Last(r.Context(), devEUI)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		srv.log.WithError(err).WithField("dev_eui", devEUI).Error("last state lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (srv *Server) UplinksHandler(w http.ResponseWriter, r *http.Request) {
	if srv.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	devEUI := strings.ToLower(mux.Vars(r)["dev_eui"])
	out, err := srv.history.Uplinks(r.Context(), devEUI, limit)
	if err != nil {
		srv.log.WithError(err).WithField("dev_eui", devEUI).Error("history lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if out == nil {
		out = []*pipeline.TrackingObject{}
	}
	writeJSON(w, http.StatusOK, out)
}
