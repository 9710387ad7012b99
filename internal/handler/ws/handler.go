// Package ws exposes the room relay over a persistent websocket: one JSON
// message per frame, dispatched by a type discriminator. The first message
// must be auth; everything downstream of dispatch lives in the room service.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/gathermap/backend/internal/model/room"
	roomservice "github.com/gathermap/backend/internal/service/room"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler upgrades connections and runs their read loops.
type Handler struct {
	svc      *roomservice.Service
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(svc *roomservice.Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	wc := &wsConn{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, conn)

	var sess *room.Session
	defer func() {
		if sess != nil {
			h.svc.Disconnect(sess.ID)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(wc, "invalid message")
			continue
		}

		if sess == nil {
			sess = h.handlePreAuth(wc, &msg)
			continue
		}

		h.dispatch(wc, sess, &msg)
	}
}

// handlePreAuth accepts only auth and ping before a session exists.
func (h *Handler) handlePreAuth(wc *wsConn, msg *inbound) *room.Session {
	switch msg.Type {
	case "auth":
		if msg.UserID == "" {
			h.sendError(wc, "userId is required")
			return nil
		}
		return h.svc.Register(wc, msg.UserID, room.UserType(msg.UserType), msg.Metadata)
	case "ping":
		h.sendPong(wc)
		return nil
	default:
		h.sendError(wc, "auth required")
		return nil
	}
}

func (h *Handler) dispatch(wc *wsConn, sess *room.Session, msg *inbound) {
	var err error

	switch msg.Type {
	case "auth":
		log.Printf("[ws] duplicate auth from session %s ignored", sess.ID)
	case "chat":
		err = h.svc.HandleChat(sess.ID, msg.Text)
	case "invoke":
		err = h.svc.HandleInvoke(sess.ID, msg.Command, msg.ID)
	case "move":
		if msg.Location == nil {
			err = errors.New("location is required")
			break
		}
		err = h.svc.Move(sess.ID, *msg.Location)
	case "status":
		err = h.svc.UpdateStatus(sess.ID, msg.Status)
	case "note":
		err = h.handleNote(sess, msg)
	case "meeting":
		err = h.handleMeeting(sess, msg)
	case "state_update":
		err = h.svc.UpdateState(sess.ID, msg.Update)
	case "drawing":
		err = h.svc.RelayDrawing(sess.ID, msg.Drawing)
	case "ping":
		h.sendPong(wc)
	default:
		log.Printf("[ws] unknown message type %q from session %s", msg.Type, sess.ID)
	}

	if err != nil {
		h.sendError(wc, err.Error())
	}
}

func (h *Handler) handleNote(sess *room.Session, msg *inbound) error {
	switch msg.Action {
	case "add":
		if msg.Lat == nil || msg.Lng == nil {
			return errors.New("note requires lat and lng")
		}
		_, err := h.svc.AddNote(sess.ID, *msg.Lat, *msg.Lng, msg.LocationName, msg.Text)
		return err
	case "delete":
		return h.svc.DeleteNote(sess.ID, msg.NoteID)
	default:
		return errors.New("unknown note action: " + msg.Action)
	}
}

func (h *Handler) handleMeeting(sess *room.Session, msg *inbound) error {
	switch msg.Action {
	case "start":
		_, err := h.svc.StartMeeting(sess.ID, msg.Lat, msg.Lng, msg.LocationName)
		return err
	case "join":
		return h.svc.JoinMeeting(sess.ID, msg.MeetingID)
	case "end":
		return h.svc.EndMeeting(sess.ID, msg.MeetingID)
	default:
		return errors.New("unknown meeting action: " + msg.Action)
	}
}

func (h *Handler) sendPong(wc *wsConn) {
	if err := wc.WriteJSON(pongEvent{Type: "pong", Timestamp: time.Now().UnixMilli()}); err != nil {
		log.Printf("[ws] write pong failed: %v", err)
	}
}

func (h *Handler) sendError(wc *wsConn, message string) {
	if err := wc.WriteJSON(errorEvent{Type: "error", Error: message}); err != nil {
		log.Printf("[ws] write error failed: %v", err)
	}
}

// pingLoop keeps the connection alive; WriteControl is safe alongside the
// data writer.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
