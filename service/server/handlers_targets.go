package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"beacon/service/subscription"
	"beacon/service/util"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.GetTargets()
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to list targets", http.StatusInternalServerError, err)
		return
	}
	if targets == nil {
		targets = []subscription.Target{}
	}
	util.WriteJSON(w, targets)
}

type registerWebPushRequest struct {
	Endpoint        string `json:"endpoint"`
	P256dh          string `json:"p256dh"`
	Auth            string `json:"auth"`
	VapidPrivateKey string `json:"vapidPrivateKey"`
}

func (s *Server) handleRegisterWebPush(w http.ResponseWriter, r *http.Request) {
	var req registerWebPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := url.Parse(req.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "endpoint must be a valid http(s) URL", http.StatusBadRequest)
		return
	}

	id, err := s.store.AddTarget(subscription.Target{
		Channel: subscription.ChannelWebPush,
		WebPush: &subscription.WebPushTarget{
			Endpoint:        req.Endpoint,
			P256dh:          req.P256dh,
			Auth:            req.Auth,
			VapidPrivateKey: req.VapidPrivateKey,
		},
	})
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to register web push target", http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("Registered web push target", "id", id)
	w.WriteHeader(http.StatusCreated)
	util.WriteJSON(w, map[string]string{"id": id})
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "targetID")

	target, err := s.store.GetTarget(id)
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to load target", http.StatusInternalServerError, err)
		return
	}
	if target == nil {
		http.Error(w, "Target not found", http.StatusNotFound)
		return
	}

	if err := s.store.DeleteTarget(id); err != nil {
		util.LogAndError(w, s.logger, "Failed to delete target", http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("Deleted target", "id", id, "channel", target.Channel)
	w.WriteHeader(http.StatusNoContent)
}
