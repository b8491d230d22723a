package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/overlaykit/relay/internal/event"
)

func TestNormalizeCheer(t *testing.T) {
	body := []byte(`{
		"subscription": {"type": "channel.cheer"},
		"event": {"broadcaster_user_id": "u1", "user_name": "alice", "bits": 500, "message": "gg"}
	}`)

	ev, err := Normalize(body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.Type != event.TypeCheer || ev.UserKey != "u1" || ev.User != "alice" || ev.Bits != 500 || ev.Message != "gg" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestNormalizeRedemption(t *testing.T) {
	body := []byte(`{
		"subscription": {"type": "channel.channel_points_custom_reward_redemption.add"},
		"event": {"broadcaster_user_id": "u1", "user_name": "bob", "user_input": "do it", "reward": {"title": "Hydrate"}}
	}`)

	ev, err := Normalize(body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.Type != event.TypeChannelPointRedemption || ev.Reward != "Hydrate" || ev.Message != "do it" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestNormalizeFollowAndSubscribe(t *testing.T) {
	follow := []byte(`{
		"subscription": {"type": "channel.follow"},
		"event": {"broadcaster_user_id": "u1", "user_name": "carol"}
	}`)
	ev, err := Normalize(follow)
	if err != nil || ev.Type != event.TypeFollow {
		t.Errorf("expected FOLLOW, got %+v err %v", ev, err)
	}

	sub := []byte(`{
		"subscription": {"type": "channel.subscribe"},
		"event": {"broadcaster_user_id": "u1", "user_name": "dan", "tier": "2000"}
	}`)
	ev, err = Normalize(sub)
	if err != nil || ev.Type != event.TypeSubscribe || ev.Tier != "2000" {
		t.Errorf("expected SUBSCRIBE tier 2000, got %+v err %v", ev, err)
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	body := []byte(`{"subscription": {"type": "stream.online"}, "event": {"broadcaster_user_id": "u1"}}`)
	_, err := Normalize(body)
	if !errors.Is(err, ErrUnsupportedSubscription) {
		t.Errorf("expected ErrUnsupportedSubscription, got %v", err)
	}
}

func TestChallenge(t *testing.T) {
	challenge, err := Challenge([]byte(`{"challenge": "abc123", "subscription": {"type": "channel.follow"}}`))
	if err != nil || challenge != "abc123" {
		t.Errorf("expected abc123, got %q err %v", challenge, err)
	}

	if _, err := Challenge([]byte(`{}`)); err == nil {
		t.Errorf("empty challenge should fail")
	}
}

func signedHeader(secret string, body []byte) http.Header {
	h := http.Header{}
	h.Set(HeaderMessageID, "msg-1")
	h.Set(HeaderTimestamp, "2026-08-30T12:00:00Z")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("msg-1"))
	mac.Write([]byte("2026-08-30T12:00:00Z"))
	mac.Write(body)
	h.Set(HeaderSignature, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return h
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("s3cret")
	body := []byte(`{"subscription":{"type":"channel.follow"}}`)

	if err := v.Verify(signedHeader("s3cret", body), body); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	if err := v.Verify(signedHeader("wrong-secret", body), body); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature for wrong secret, got %v", err)
	}

	tampered := append([]byte(nil), body...)
	tampered[0] = ' '
	if err := v.Verify(signedHeader("s3cret", body), tampered); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature for tampered body, got %v", err)
	}

	if err := v.Verify(http.Header{}, body); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature for missing signature, got %v", err)
	}
}
