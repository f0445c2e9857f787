package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PushSink delivers a push message to one device token. Implementations are
// fire-and-forget from the engine's perspective.
type PushSink interface {
	Send(ctx context.Context, token, title, body string) error
}

// TextSink delivers an out-of-band text message to a phone number.
type TextSink interface {
	Send(ctx context.Context, phone, text string) error
}

// Publisher emits realtime events so subscribed clients refresh without
// polling. The engine only publishes.
type Publisher interface {
	Emit(ctx context.Context, topic, event string) error
}

type NoopPushSink struct{}

func (NoopPushSink) Send(context.Context, string, string, string) error { return nil }

type NoopTextSink struct{}

func (NoopTextSink) Send(context.Context, string, string) error { return nil }

type NoopPublisher struct{}

func (NoopPublisher) Emit(context.Context, string, string) error { return nil }

// FCMSink posts to the FCM legacy HTTP endpoint.
type FCMSink struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewFCMSink(endpoint, serverKey string) *FCMSink {
	return &FCMSink{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *FCMSink) Send(ctx context.Context, token, title, body string) error {
	payload, err := json.Marshal(map[string]any{
		"to": token,
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// TextGatewaySink posts to a WhatsApp-style text gateway.
type TextGatewaySink struct {
	url    string
	token  string
	client *http.Client
}

func NewTextGatewaySink(url, token string) *TextGatewaySink {
	return &TextGatewaySink{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *TextGatewaySink) Send(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": text,
	})
	if err != nil {
		return fmt.Errorf("marshal text payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build text request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("text gateway returned %d", resp.StatusCode)
	}
	return nil
}
