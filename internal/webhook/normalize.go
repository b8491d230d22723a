// Package webhook maps Twitch EventSub notifications onto the normalized
// event set and guards the ingress with signature verification.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/overlaykit/relay/internal/event"
)

// EventSub message types.
const (
	MessageTypeNotification = "notification"
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeRevocation   = "revocation"
)

// Subscription types this service understands.
const (
	SubCheer      = "channel.cheer"
	SubRedemption = "channel.channel_points_custom_reward_redemption.add"
	SubFollow     = "channel.follow"
	SubSubscribe  = "channel.subscribe"
)

// ErrUnsupportedSubscription is returned for subscription types outside the
// closed event set.
var ErrUnsupportedSubscription = errors.New("webhook: unsupported subscription type")

type notification struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
		UserName          string `json:"user_name"`
		Bits              int    `json:"bits"`
		Message           string `json:"message"`
		UserInput         string `json:"user_input"`
		Tier              string `json:"tier"`
		Reward            struct {
			Title string `json:"title"`
		} `json:"reward"`
	} `json:"event"`
}

// Challenge extracts the echo value from a webhook_callback_verification
// payload.
func Challenge(body []byte) (string, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return "", fmt.Errorf("parse verification payload: %w", err)
	}
	if n.Challenge == "" {
		return "", errors.New("webhook: empty challenge")
	}
	return n.Challenge, nil
}

// Normalize maps one notification body onto an event record. The returned
// event still needs ingestion; this function has no side effects.
func Normalize(body []byte) (event.Event, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return event.Event{}, fmt.Errorf("parse notification: %w", err)
	}

	ev := event.Event{
		UserKey: n.Event.BroadcasterUserID,
		User:    n.Event.UserName,
	}

	switch n.Subscription.Type {
	case SubCheer:
		ev.Type = event.TypeCheer
		ev.Bits = n.Event.Bits
		ev.Message = n.Event.Message
	case SubRedemption:
		ev.Type = event.TypeChannelPointRedemption
		ev.Reward = n.Event.Reward.Title
		ev.Message = n.Event.UserInput
	case SubFollow:
		ev.Type = event.TypeFollow
	case SubSubscribe:
		ev.Type = event.TypeSubscribe
		ev.Tier = n.Event.Tier
	default:
		return event.Event{}, fmt.Errorf("%w: %s", ErrUnsupportedSubscription, n.Subscription.Type)
	}

	return ev, nil
}
