package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/ride-relay/internal/server"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RelayApp) healthz(w http.ResponseWriter, r *http.Request) {
	if s.relay.Stopped() {
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: s.relay.Count(),
	})
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	if s.relay.Stopped() {
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := s.newConnId()
	if err != nil {
		s.log.Println("error generating connection id:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(id, conn, s.relay, s.log, s.cfg)
	if err := s.relay.Connect(client); err != nil {
		s.log.Printf("connect %q: %v", id, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(s.cfg.WriteWait))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
