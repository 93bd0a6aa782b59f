package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Message is one patient-facing notification rendered from a queue event.
type Message struct {
	Channel     Channel `json:"channel"`
	EventType   string  `json:"event_type"`
	TokenNumber string  `json:"token_number"`
	Recipient   string  `json:"recipient"`
	Body        string  `json:"body"`
}

// Provider hands a Message to an SMS or e-mail gateway.
type Provider interface {
	Deliver(ctx context.Context, msg Message) error
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, msg Message) error

func (f ProviderFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Discard drops every message.
var Discard Provider = ProviderFunc(func(context.Context, Message) error { return nil })

// LogProvider writes messages to the process log; the default when no
// gateway is configured.
var LogProvider Provider = ProviderFunc(func(_ context.Context, msg Message) error {
	log.Printf("notify deliver channel=%s event=%s token=%s to=%s body=%q", msg.Channel, msg.EventType, msg.TokenNumber, msg.Recipient, msg.Body)
	return nil
})

// ProviderFor resolves a configured gateway: "log" or empty, "noop", or an
// http(s) URL that receives each Message as JSON.
func ProviderFor(channel Channel, gateway, bearer string) Provider {
	switch {
	case gateway == "" || gateway == "log":
		return LogProvider
	case gateway == "noop":
		return Discard
	case strings.HasPrefix(gateway, "http://") || strings.HasPrefix(gateway, "https://"):
		return &Gateway{
			URL:    gateway,
			Bearer: bearer,
			Client: &http.Client{Timeout: 5 * time.Second},
		}
	default:
		log.Printf("notify: unknown %s gateway %q, logging instead", channel, gateway)
		return LogProvider
	}
}

var errGatewayRejected = errors.New("gateway rejected message")

// Gateway posts messages to an HTTP endpoint that fans out to the real
// SMS or e-mail vendor.
type Gateway struct {
	URL    string
	Bearer string
	Client *http.Client
}

func (g *Gateway) Deliver(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+g.Bearer)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s for token %s: %w", msg.Channel, msg.TokenNumber, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver %s for token %s: status %d: %w", msg.Channel, msg.TokenNumber, resp.StatusCode, errGatewayRejected)
	}
	return nil
}
