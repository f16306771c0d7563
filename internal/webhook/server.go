// Package webhook wires the carrier's signaling webhooks, the media-stream
// WebSocket upgrade, and the bridge's own REST API onto one HTTP server.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/callbridge/internal/agentclient"
	"github.com/voicebridge/callbridge/internal/bridgeerr"
	"github.com/voicebridge/callbridge/internal/callmanager"
	"github.com/voicebridge/callbridge/internal/callrecord"
	"github.com/voicebridge/callbridge/internal/carrier"
)

// Config parameterizes a Server.
type Config struct {
	Manager *callmanager.Manager
	Agent   *agentclient.Client

	AuthToken       string // carrier auth token, used for signature verification
	BaseURL         string // empty means development mode
	DefaultGreeting string
}

// Server is the bridge's HTTP surface: carrier webhooks, the media-stream
// WebSocket, and the REST control API.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	apologyText string
}

// New constructs a Server and registers the transcription handler that
// forwards finalized caller turns to the agent gateway.
func New(cfg Config) *Server {
	s := &Server{
		cfg:         cfg,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		apologyText: "Sorry, I'm having trouble right now. Please try again in a moment.",
	}
	cfg.Manager.SetTranscriptionHandler(s.forwardToAgent)
	return s
}

// Handler builds the route table described in SPEC_FULL.md §4.6.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /voice/inbound", s.withSignature(s.handleInboundCall))
	mux.HandleFunc("POST /voice/status", s.withSignature(s.handleStatusCallback))
	mux.HandleFunc("POST /voice/gather", s.withSignature(s.handleGatherCallback))
	mux.HandleFunc("GET /voice/stream", s.handleMediaStream)

	mux.HandleFunc("POST /api/call", s.handleAPICall)
	mux.HandleFunc("POST /api/speak", s.handleAPISpeak)
	mux.HandleFunc("POST /api/end", s.handleAPIEnd)
	mux.HandleFunc("GET /api/call/{callSid}", s.handleAPIGetCall)
	mux.HandleFunc("GET /api/calls", s.handleAPIListCalls)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// forwardToAgent is registered as the call manager's TranscriptionHandler:
// it forwards a finalized caller turn to the agent gateway and speaks the
// reply, falling back to an apology on failure per spec rather than ending
// the call.
func (s *Server) forwardToAgent(callSID, from, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reply, err := s.cfg.Agent.SendMessage(ctx, callSID, from, text)
	if err != nil {
		slog.Warn("webhook: agent forward failed", "call_sid", callSID, "error", err)
		if sErr := s.cfg.Manager.Speak(ctx, callSID, s.apologyText); sErr != nil {
			slog.Warn("webhook: apology speak failed", "call_sid", callSID, "error", sErr)
		}
		return
	}
	if reply == "" {
		return
	}
	if err := s.cfg.Manager.Speak(ctx, callSID, reply); err != nil {
		slog.Warn("webhook: speak reply failed", "call_sid", callSID, "error", err)
	}
}

// withSignature verifies the carrier's webhook signature before calling
// next, rejecting with 403 on mismatch. In development mode (BaseURL unset)
// a request with no signature header is let through unverified.
func (s *Server) withSignature(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, bridgeerr.New(bridgeerr.KindInvalidRequest, "webhook", "malformed form body"))
			return
		}

		signature := r.Header.Get("X-Twilio-Signature")
		if signature == "" && s.cfg.BaseURL == "" {
			next(w, r)
			return
		}

		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}

		if !carrier.VerifySignature(s.cfg.AuthToken, requestURL(r), params, signature) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && !strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func formParams(r *http.Request) map[string]string {
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return params
}

func (s *Server) handleInboundCall(w http.ResponseWriter, r *http.Request) {
	greeting := r.URL.Query().Get("greeting")
	if greeting == "" {
		greeting = s.cfg.DefaultGreeting
	}

	twiml, err := s.cfg.Manager.HandleInboundCall(formParams(r), greeting)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTwiML(w, twiml)
}

func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Manager.HandleStatusCallback(formParams(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGatherCallback(w http.ResponseWriter, r *http.Request) {
	twiml, err := s.cfg.Manager.HandleGatherCallback(formParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeTwiML(w, twiml)
}

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("webhook: websocket upgrade failed", "error", err)
		return
	}
	if err := s.cfg.Manager.HandleMediaStream(r.Context(), conn); err != nil {
		slog.Warn("webhook: media stream ended with error", "error", err)
	}
}

type apiCallRequest struct {
	To           string            `json:"to"`
	Message      string            `json:"message,omitempty"`
	Greeting     string            `json:"greeting,omitempty"`
	Conversation bool              `json:"conversation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type apiCallResponse struct {
	Success bool   `json:"success"`
	CallSID string `json:"callSid"`
	State   string `json:"state"`
}

func (s *Server) handleAPICall(w http.ResponseWriter, r *http.Request) {
	var req apiCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bridgeerr.New(bridgeerr.KindInvalidRequest, "webhook", "malformed json body"))
		return
	}

	var record *callrecord.Record
	var err error
	switch {
	case req.Greeting != "" || req.Conversation:
		record, err = s.cfg.Manager.MakeConversationCall(r.Context(), req.To, req.Greeting, req.Metadata)
	case req.Message != "":
		record, err = s.cfg.Manager.MakeCall(r.Context(), req.To, req.Message, req.Metadata)
	default:
		writeError(w, bridgeerr.New(bridgeerr.KindInvalidRequest, "webhook", "require one of greeting, conversation, or message"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiCallResponse{
		Success: true,
		CallSID: record.CallSID,
		State:   string(record.GetSignalingState()),
	})
}

type apiSpeakRequest struct {
	CallSID string `json:"callSid"`
	Message string `json:"message"`
}

func (s *Server) handleAPISpeak(w http.ResponseWriter, r *http.Request) {
	var req apiSpeakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bridgeerr.New(bridgeerr.KindInvalidRequest, "webhook", "malformed json body"))
		return
	}
	if err := s.cfg.Manager.Speak(r.Context(), req.CallSID, req.Message); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type apiEndRequest struct {
	CallSID string `json:"callSid"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleAPIEnd(w http.ResponseWriter, r *http.Request) {
	var req apiEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bridgeerr.New(bridgeerr.KindInvalidRequest, "webhook", "malformed json body"))
		return
	}
	if err := s.cfg.Manager.EndCall(r.Context(), req.CallSID, req.Message); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPIGetCall(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("callSid")
	record, ok := s.cfg.Manager.GetRecord(callSID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
		return
	}
	writeJSON(w, http.StatusOK, recordView(record))
}

func (s *Server) handleAPIListCalls(w http.ResponseWriter, r *http.Request) {
	records := s.cfg.Manager.ListActiveCalls()
	views := make([]callView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeCalls": len(s.cfg.Manager.ListActiveCalls()),
	})
}

// callView is the REST API's JSON projection of a callrecord.Record.
type callView struct {
	CallSID           string                       `json:"callSid"`
	Direction         callrecord.Direction         `json:"direction"`
	From              string                       `json:"from"`
	To                string                       `json:"to"`
	SignalingState    callrecord.SignalingState    `json:"signalingState"`
	ConversationState callrecord.ConversationState `json:"conversationState"`
	Transcript        []callrecord.TranscriptEntry `json:"transcript"`
}

func recordView(r *callrecord.Record) callView {
	return callView{
		CallSID:           r.CallSID,
		Direction:         r.Direction,
		From:              r.From,
		To:                r.To,
		SignalingState:    r.GetSignalingState(),
		ConversationState: r.GetConversationState(),
		Transcript:        r.TranscriptSnapshot(),
	}
}

func writeTwiML(w http.ResponseWriter, twiml string) {
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(twiml))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := bridgeerr.KindInternal
	if be, ok := err.(*bridgeerr.Error); ok {
		kind = be.Kind
	}
	writeJSON(w, kind.HTTPStatus(), map[string]string{"error": err.Error()})
}
