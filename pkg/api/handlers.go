package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"chatterly/pkg/logger"
	"chatterly/pkg/models"
	"chatterly/pkg/session"
)

// maxUploadBytes bounds multipart uploads (16 MiB).
const maxUploadBytes = 16 << 20

func (s *server) currentSession(w http.ResponseWriter) (session.Session, bool) {
	sess, err := s.Sessions.Get()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return session.Session{}, false
	}
	return sess, true
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handlePutSession installs the identity the external provider yielded.
// The daemon does not authenticate; it trusts the already-completed
// provider flow and records the resulting session, making the profile
// joinable for other participants.
func (s *server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var sess session.Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if sess.AccountID == "" {
		writeError(w, http.StatusBadRequest, "missing account_id")
		return
	}
	s.Sessions.Set(sess)
	if err := s.Platform.UpsertProfile(r.Context(), sess.Account()); err != nil {
		logger.Error("profile_upsert_failed", "account", sess.AccountID, "error", err)
	}
	logger.Info("session_started", "account", sess.AccountID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.Sessions.Get(); err == nil {
		logger.Info("session_ended", "account", sess.AccountID)
	}
	s.Ingest.Close()
	s.Sessions.Clear()
	s.Store.ReplaceMessages("", nil)
	s.Store.ReplaceChannels(nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListChannels reloads and returns the sidebar. A backend failure
// here is a background load: logged, degraded to an empty list.
func (s *server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	chs, err := s.Directory.Refresh(r.Context(), sess)
	if err != nil {
		logger.Error("channel_list_failed", "account", sess.AccountID, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"channels": []models.Channel{}})
		return
	}
	if chs == nil {
		chs = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": chs})
}

// handleOpenDirect finds or creates the DM channel with the given account.
func (s *server) handleOpenDirect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	var target models.Account
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ch, err := s.Directory.OpenDirect(r.Context(), sess, target)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleOpenChannel switches the open conversation: full history reload
// into the store and a fresh live subscription scoped to the channel. The
// subscription uses the daemon context, not the request's, so it survives
// the response.
func (s *server) handleOpenChannel(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentSession(w); !ok {
		return
	}
	channelID := mux.Vars(r)["id"]
	msgs, err := s.Platform.ListMessages(r.Context(), channelID)
	if err != nil {
		logger.Error("message_list_failed", "channel", channelID, "error", err)
		msgs = nil
	}
	s.Store.ReplaceMessages(channelID, msgs)
	if err := s.Ingest.Open(s.BaseCtx, channelID); err != nil {
		logger.Error("live_feed_open_failed", "channel", channelID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channelID,
		"messages":   s.Store.Messages(),
	})
}

// handleSendText accepts a text send and returns immediately; delivery
// feedback flows through the live stream (provisional append, then promote
// or withdraw).
func (s *server) handleSendText(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	var req struct {
		ChannelID string `json:"channel_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	go s.Send.SendText(s.BaseCtx, sess, req.ChannelID, req.Text)
	w.WriteHeader(http.StatusAccepted)
}

// handleSendFile accepts a multipart upload and sends the resulting URL as
// an attachment message.
func (s *server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	channelID := r.FormValue("channel_id")
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}
	mime := hdr.Header.Get("Content-Type")
	go s.Send.SendFile(s.BaseCtx, sess, channelID, hdr.Filename, mime, data)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w)
	if !ok {
		return
	}
	res, err := s.Directory.Search(r.Context(), sess, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if res == nil {
		res = []models.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": res})
}
