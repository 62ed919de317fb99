package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/location"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/realtime"
)

const (
	msgAvailable = "available"
	msgLocation  = "location"
	msgOffline   = "offline"

	eventError = "error"

	maxInboundBytes = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inbound is a message from a driver connection.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type availability struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID := mustActor(r).ID
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws_upgrade_fail", "driver_id", driverID, "error", err)
		return
	}
	conn.SetReadLimit(maxInboundBytes)
	client := s.Hub.Attach(driverID)
	go realtime.WritePump(conn, client, s.logger)
	realtime.KeepAlive(conn)

	defer func() {
		if !s.Hub.Detach(client) {
			// a newer connection owns this driver's state
			return
		}
		ctx := context.WithoutCancel(r.Context())
		if err := s.Dispatch.OnDriverDisconnect(ctx, driverID); err != nil {
			s.logger.Warn("driver_disconnect_failed", "driver_id", driverID, "error", err)
		}
		s.Location.OnDriverDisconnect(ctx, driverID)
		s.logger.Info("ws_driver_closed", "driver_id", driverID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if stop := s.handleDriverMessage(r.Context(), driverID, data); stop {
			return
		}
	}
}

// handleDriverMessage applies one inbound message. Failures are reported to
// the sending driver only.
func (s *Server) handleDriverMessage(ctx context.Context, driverID string, data []byte) (stop bool) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.replyError(driverID, errorBody{Error: string(apperr.KindInvalidInput), Message: "malformed message"})
		return false
	}
	switch msg.Type {
	case msgAvailable:
		var a availability
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			s.replyError(driverID, errorBody{Error: string(apperr.KindInvalidInput), Message: "malformed availability"})
			return false
		}
		if err := s.Dispatch.OnDriverAvailable(ctx, driverID, a.Lat, a.Lng); err != nil {
			s.replyError(driverID, errorBody{Error: string(apperr.KindOf(err)), Message: err.Error()})
		}
	case msgLocation:
		u, err := decodeLocation(msg.Data)
		if err != nil {
			s.replyError(driverID, err)
			return false
		}
		if _, err := s.Location.OnLocationUpdate(ctx, driverID, u); err != nil {
			s.replyError(driverID, err)
		}
	case msgOffline:
		return true
	default:
		s.replyError(driverID, errorBody{Error: string(apperr.KindInvalidInput), Message: "unknown message type " + msg.Type})
	}
	return false
}

// locationFrame mirrors models.LocationUpdate with lat and lng as pointers so
// a frame that omits them is rejected instead of read as 0,0.
type locationFrame struct {
	RideID   string   `json:"ride_id"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Heading  *float64 `json:"heading"`
	Speed    *float64 `json:"speed"`
	Accuracy *float64 `json:"accuracy"`
}

func decodeLocation(data []byte) (models.LocationUpdate, error) {
	var f locationFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return models.LocationUpdate{}, &location.StreamError{Code: location.CodeInvalidLocation, Message: "malformed location"}
	}
	if f.Lat == nil || f.Lng == nil {
		return models.LocationUpdate{}, &location.StreamError{Code: location.CodeInvalidLocation, Message: "lat and lng are required"}
	}
	return models.LocationUpdate{
		RideID:   f.RideID,
		Lat:      *f.Lat,
		Lng:      *f.Lng,
		Heading:  f.Heading,
		Speed:    f.Speed,
		Accuracy: f.Accuracy,
	}, nil
}

func (s *Server) replyError(driverID string, payload any) {
	s.Hub.Send(driverID, models.Event{Type: eventError, Payload: payload})
}

// handlePassengerWS only delivers; anything the passenger sends is ignored.
func (s *Server) handlePassengerWS(w http.ResponseWriter, r *http.Request) {
	passengerID := mustActor(r).ID
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws_upgrade_fail", "passenger_id", passengerID, "error", err)
		return
	}
	conn.SetReadLimit(maxInboundBytes)
	client := s.Hub.Attach(passengerID)
	go realtime.WritePump(conn, client, s.logger)
	realtime.KeepAlive(conn)
	defer s.Hub.Detach(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
