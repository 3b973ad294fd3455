package controller

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"taskfolio/models"
	"taskfolio/realtime"
	"taskfolio/utils"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
	wsJoinTimeout = 5 * time.Second
)

// WSController bridges websocket clients to the realtime hub. Clients send
// joinFolder/leaveFolder messages and receive taskUpdated events for the
// folders they joined.
type WSController struct {
	Hub    *realtime.Hub
	Logger *logrus.Entry
}

func NewWSController(hub *realtime.Hub, logger *logrus.Entry) *WSController {
	return &WSController{Hub: hub, Logger: logger}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (wc *WSController) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (wc *WSController) Handle() fiber.Handler {
	return websocket.New(wc.serve)
}

func (wc *WSController) serve(conn *websocket.Conn) {
	user, _ := conn.Locals("user").(*models.User)
	if user == nil {
		_ = conn.Close()
		return
	}

	session := wc.Hub.NewSession(user.ID)
	log := wc.Logger.WithFields(logrus.Fields{"session_id": session.ID, "user_id": user.ID})
	log.Info("websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		wc.writePump(conn, session, log)
	}()

	wc.readLoop(conn, session, log)

	wc.Hub.Close(session)
	<-done
	log.Info("websocket disconnected")
}

func (wc *WSController) readLoop(conn *websocket.Conn, session *realtime.Session, log *logrus.Entry) {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}

		switch msg.Event {
		case realtime.EventJoinFolder:
			wc.join(session, msg.FolderID, log)
		case realtime.EventLeaveFolder:
			wc.Hub.Leave(session, msg.FolderID)
			wc.Hub.Reply(session, realtime.Message{Event: realtime.EventLeft, FolderID: msg.FolderID})
		default:
			wc.Hub.Reply(session, realtime.Message{Event: realtime.EventError, Message: "Unknown event"})
		}
	}
}

func (wc *WSController) join(session *realtime.Session, folderID uint, log *logrus.Entry) {
	if folderID == 0 {
		wc.Hub.Reply(session, realtime.Message{Event: realtime.EventError, Message: "Folder ID is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsJoinTimeout)
	defer cancel()
	if err := wc.Hub.Join(ctx, session, folderID); err != nil {
		if utils.IsKind(err, utils.KindInternal) {
			utils.LogError("ws_join_failed", err, map[string]interface{}{
				"session_id": session.ID,
				"folder_id":  folderID,
			})
		}
		wc.Hub.Reply(session, realtime.Message{
			Event:    realtime.EventError,
			FolderID: folderID,
			Message:  utils.PublicMessage(err),
		})
		return
	}
	log.WithField("folder_id", folderID).Debug("joined folder channel")
	wc.Hub.Reply(session, realtime.Message{Event: realtime.EventJoined, FolderID: folderID})
}

// writePump drains the session queue onto the socket until the hub closes
// it. After a write error the socket is closed and the queue is still
// drained so the hub never blocks on it.
func (wc *WSController) writePump(conn *websocket.Conn, session *realtime.Session, log *logrus.Entry) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	broken := false
	for {
		select {
		case msg, ok := <-session.Messages():
			if !ok {
				if !broken {
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}
			if broken {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Warn("websocket write failed")
				broken = true
				_ = conn.Close()
			}
		case <-ticker.C:
			if broken {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				broken = true
				_ = conn.Close()
			}
		}
	}
}
