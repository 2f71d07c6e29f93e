// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/rummy/internal/auth"
	"github.com/jason-s-yu/rummy/internal/errs"
	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/jason-s-yu/rummy/internal/models"
	"github.com/jason-s-yu/rummy/internal/rating"
	"github.com/sirupsen/logrus"
)

// Subprotocol clients must request.
const Subprotocol = "rummy"

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var errInvalidPayload = errs.New(errs.InvalidPayload, "invalid_payload")

// Ack answers one inbound action.
type Ack struct {
	Type   string `json:"type"` // always "ack"
	AckID  string `json:"ackId,omitempty"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Server bundles what the websocket and HTTP handlers need.
type Server struct {
	Engine  *game.Engine
	Hub     *Hub
	Ratings *rating.Service
	Issuer  *auth.Issuer
	Logger  logrus.FieldLogger
}

// session is one authenticated connection.
type session struct {
	srv    *Server
	client *client
	id     auth.Identity
	log    logrus.FieldLogger
}

func (s *session) actor() game.Actor {
	return game.Actor{UserID: s.id.UserID, ConnID: s.client.id, Name: s.id.Name}
}

// identify verifies the request token, or issues a guest identity.
func (srv *Server) identify(r *http.Request) (auth.Identity, string, error) {
	if tok := requestToken(r); tok != "" {
		if id, err := srv.Issuer.Authenticate(tok); err == nil {
			return id, tok, nil
		}
		srv.Logger.WithField("remote", r.RemoteAddr).Debug("ignoring invalid token, issuing guest")
	}
	id := auth.NewGuest(r.URL.Query().Get("name"))
	tok, err := srv.Issuer.Issue(id)
	if err != nil {
		return auth.Identity{}, "", err
	}
	return id, tok, nil
}

// WSHandler upgrades the connection and runs the action loop until the
// client goes away.
func (srv *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, token, err := srv.identify(r)
		if err != nil {
			srv.Logger.WithError(err).Error("failed to issue identity")
			http.Error(w, "failed to issue identity", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			srv.Logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the rummy subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		cl := newClient(id.UserID, cancel)
		srv.Hub.register(cl)
		s := &session{
			srv:    srv,
			client: cl,
			id:     id,
			log: srv.Logger.WithFields(logrus.Fields{
				"user": id.UserID,
				"conn": cl.id,
			}),
		}
		s.log.WithField("remote", r.RemoteAddr).Info("websocket connected")
		if err := srv.Hub.store.BindIdentity(ctx, id.UserID, cl.id); err != nil {
			s.log.WithError(err).Warn("failed to bind identity")
		}

		go writePump(ctx, c, cl, s.log)
		srv.Hub.sendDirect(cl, map[string]any{
			"type":   "session",
			"userId": id.UserID,
			"name":   id.Name,
			"connId": cl.id,
			"token":  token,
		})

		s.readPump(ctx, c)

		srv.Hub.unregister(cl)
		dctx, dcancel := context.WithTimeout(context.Background(), writeTimeout)
		if roomID := cl.room(); roomID != "" {
			if err := srv.Engine.HandleDisconnect(dctx, s.actor(), roomID); err != nil {
				s.log.WithError(err).Warn("disconnect handling failed")
			}
		} else if err := srv.Hub.store.UnbindIdentity(dctx, id.UserID, cl.id); err != nil {
			s.log.WithError(err).Warn("failed to unbind identity")
		}
		dcancel()
		s.log.Info("websocket disconnected")
	}
}

func (s *session) readPump(ctx context.Context, c *websocket.Conn) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return
			}
			s.log.WithError(err).Debug("read error")
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg models.GameAction
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(Ack{Action: "unknown", Reason: errs.Reason(errInvalidPayload)})
			continue
		}
		if msg.Type == "ping" {
			s.srv.Hub.sendDirect(s.client, map[string]string{"type": "pong"})
			continue
		}
		s.reply(s.handle(ctx, msg))
	}
}

func (s *session) reply(ack Ack) {
	ack.Type = "ack"
	s.srv.Hub.sendDirect(s.client, ack)
}

// handle runs one action. It never panics and never returns an error: every
// outcome becomes an acknowledgement.
func (s *session) handle(ctx context.Context, msg models.GameAction) (ack Ack) {
	ack = Ack{AckID: msg.AckID, Action: msg.Type}
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"action": msg.Type, "panic": r}).Error("action handler panicked")
			ack.OK, ack.Reason, ack.Data = false, errs.Reason(errs.Internal), nil
		}
	}()

	data, err := s.dispatch(ctx, msg)
	if err != nil {
		ack.Reason = errs.Reason(err)
		l := s.log.WithFields(logrus.Fields{"action": msg.Type, "reason": ack.Reason})
		if errs.KindOf(err) == errs.Internal {
			l.WithError(err).Error("action failed")
		} else {
			l.Info("action rejected")
		}
		return ack
	}
	ack.OK = true
	ack.Data = data
	return ack
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

func (p roomPayload) room() (string, error) {
	id := strings.ToUpper(strings.TrimSpace(p.RoomID))
	if id == "" {
		return "", errs.New(errs.InvalidPayload, "room_id_required")
	}
	return id, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

func (s *session) dispatch(ctx context.Context, msg models.GameAction) (any, error) {
	eng := s.srv.Engine
	switch msg.Type {
	case "create_room":
		var p game.CreateOptions
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		room, err := eng.CreateRoom(ctx, s.actor(), p)
		if err != nil {
			return nil, err
		}
		s.client.setRoom(room.RoomID)
		return eng.View(room, s.id.UserID), nil

	case "join_room", "rejoin_room", "start_game", "leave_room":
		var p roomPayload
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		roomID, err := p.room()
		if err != nil {
			return nil, err
		}
		return s.roomAction(ctx, msg.Type, roomID)

	case "pick_card":
		var p struct {
			roomPayload
			Source string `json:"source"`
		}
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		roomID, err := p.room()
		if err != nil {
			return nil, err
		}
		card, err := eng.PickCard(ctx, s.actor(), roomID, p.Source)
		if err != nil {
			return nil, err
		}
		return map[string]any{"card": card}, nil

	case "discard_card":
		var p struct {
			roomPayload
			Card models.Card `json:"card"`
		}
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		roomID, err := p.room()
		if err != nil {
			return nil, err
		}
		room, err := eng.DiscardCard(ctx, s.actor(), roomID, p.Card)
		if err != nil {
			return nil, err
		}
		return eng.View(room, s.id.UserID), nil

	case "declare":
		var p struct {
			roomPayload
			game.DeclareRequest
		}
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		roomID, err := p.room()
		if err != nil {
			return nil, err
		}
		return eng.Declare(ctx, s.actor(), roomID, p.DeclareRequest)

	case "preview_hand":
		var p struct {
			roomPayload
			Groups [][]models.Card `json:"groups"`
		}
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		roomID, err := p.room()
		if err != nil {
			return nil, err
		}
		return eng.PreviewHand(ctx, s.actor(), roomID, p.Groups)

	case "get_stats":
		var p struct {
			UserID string `json:"userId"`
		}
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			p.UserID = s.id.UserID
		}
		return s.srv.Ratings.GetStats(ctx, p.UserID)

	case "get_leaderboard":
		var p struct {
			Limit int `json:"limit"`
		}
		if err := decode(msg.Payload, &p); err != nil {
			return nil, err
		}
		return s.srv.Ratings.Leaderboard(ctx, clampLimit(p.Limit))
	}
	return nil, errs.New(errs.InvalidPayload, "unknown_action")
}

func (s *session) roomAction(ctx context.Context, action, roomID string) (any, error) {
	eng := s.srv.Engine
	a := s.actor()
	var (
		room *models.Room
		err  error
	)
	switch action {
	case "join_room":
		room, err = eng.JoinRoom(ctx, a, roomID)
	case "rejoin_room":
		room, err = eng.RejoinRoom(ctx, a, roomID)
	case "start_game":
		room, err = eng.StartGame(ctx, a, roomID)
	case "leave_room":
		if err := eng.LeaveRoom(ctx, a, roomID); err != nil {
			return nil, err
		}
		s.client.setRoom("")
		return map[string]any{"roomId": roomID}, nil
	}
	if err != nil {
		return nil, err
	}
	s.client.setRoom(roomID)
	return eng.View(room, s.id.UserID), nil
}

func writePump(ctx context.Context, c *websocket.Conn, cl *client, log logrus.FieldLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-cl.out:
			if !ok {
				c.Close(SlowConsumerError, "outbound queue closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.WithError(err).Debug("write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Debug("ping failed, assuming disconnect")
				return
			}
		}
	}
}
