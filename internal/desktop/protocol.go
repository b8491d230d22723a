package desktop

import (
	"encoding/json"
	"fmt"
)

// Command types exchanged with desktop companions. One JSON object per frame;
// no framing beyond the transport's native message boundaries.
const (
	CmdIdentify      = "identify"
	CmdIdentifyAck   = "identify_ack"
	CmdPing          = "ping"
	CmdPong          = "pong"
	CmdPunishment    = "punishment"
	CmdPunishmentEnd = "punishment_end"
	CmdError         = "error"
	CmdAuthSuccess   = "auth_success"
	CmdAuthRequired  = "auth_required"
)

// Punishment is the desktop-bound command representing a physical
// input-blocking effect on the streamer's machine.
type Punishment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DurationMs  int64  `json:"durationMs"`
	TriggeredBy string `json:"triggeredBy"`
}

// Inbound message variants for internal routing.
type (
	identifyRequest struct {
		clientType string
		version    string
		token      string
	}
	pingRequest struct{}
	pongReply   struct{}
)

// parseCommand parses one inbound JSON frame into a tagged variant.
func parseCommand(data []byte) (any, error) {
	var msg struct {
		Type       string `json:"type"`
		ClientType string `json:"clientType"`
		Version    string `json:"version"`
		Token      string `json:"token"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal desktop command: %w", err)
	}

	switch msg.Type {
	case CmdIdentify:
		return &identifyRequest{
			clientType: msg.ClientType,
			version:    msg.Version,
			token:      msg.Token,
		}, nil
	case CmdPing:
		return &pingRequest{}, nil
	case CmdPong:
		return &pongReply{}, nil
	default:
		return nil, fmt.Errorf("unknown desktop command type: %s", msg.Type)
	}
}

func buildAuthSuccess(message string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":    CmdAuthSuccess,
		"message": message,
	})
	return data
}

func buildAuthRequired(message string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":    CmdAuthRequired,
		"message": message,
	})
	return data
}

func buildIdentifyAck(connID string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":         CmdIdentifyAck,
		"connectionId": connID,
	})
	return data
}

func buildPing() []byte {
	data, _ := json.Marshal(map[string]any{"type": CmdPing})
	return data
}

func buildPong() []byte {
	data, _ := json.Marshal(map[string]any{"type": CmdPong})
	return data
}

func buildPunishment(p Punishment) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":        CmdPunishment,
		"id":          p.ID,
		"punishment":  p.Type,
		"durationMs":  p.DurationMs,
		"triggeredBy": p.TriggeredBy,
	})
	return data
}

func buildPunishmentEnd(id string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type": CmdPunishmentEnd,
		"id":   id,
	})
	return data
}

func buildError(message string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":    CmdError,
		"message": message,
	})
	return data
}
