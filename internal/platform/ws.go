// Package platform connects to the chat platform's websocket event stream,
// feeding inbound messages to the router and pushing replies back.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/easel-bot/easel/internal/artifact"
	"github.com/easel-bot/easel/internal/bot"
)

const (
	writeTimeout     = 10 * time.Second
	reconnectMin     = time.Second
	reconnectMax     = 30 * time.Second
	maxInboundFrame  = 8 << 20
	handshakeTimeout = 4 * time.Second
)

// Client maintains one outbound websocket connection to the platform and
// reconnects with backoff when it drops.
type Client struct {
	wsURL     string
	router    *bot.Router
	artifacts *artifact.Store
	dialer    websocket.Dialer

	writeMu sync.Mutex
}

type inboundFrame struct {
	Type  string    `json:"type"`
	Event bot.Event `json:"event"`
}

// outboundFrame carries one reply part. Image bytes are inlined so the
// platform side never touches our artifact directory.
type outboundFrame struct {
	Type    string        `json:"type"`
	ChatID  string        `json:"chat_id"`
	IsGroup bool          `json:"is_group"`
	Kind    bot.ReplyKind `json:"kind"`
	Text    string        `json:"text,omitempty"`
	Image   []byte        `json:"image,omitempty"`
	Interim bool          `json:"interim,omitempty"`
}

func NewClient(wsURL string, router *bot.Router, artifacts *artifact.Store) (*Client, error) {
	normalized, err := normalizeWSURL(wsURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		wsURL:     normalized,
		router:    router,
		artifacts: artifacts,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("platform websocket url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse platform websocket url: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported platform websocket scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Run dials and serves until ctx is cancelled. Dropped connections are
// redialed with doubling backoff, reset after any successful session.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			if resp != nil {
				log.Printf("platform: dial %s failed (%s): %v", c.wsURL, resp.Status, err)
			} else {
				log.Printf("platform: dial %s failed: %v", c.wsURL, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		log.Printf("platform: connected to %s", c.wsURL)
		backoff = reconnectMin
		c.serve(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("platform: connection lost, reconnecting")
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxInboundFrame)

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("platform: dropping unparseable frame: %v", err)
			continue
		}
		if frame.Type != "event" {
			continue
		}

		// Generation blocks for up to the gateway timeout; handle off the
		// read loop so other chats keep flowing.
		handlers.Add(1)
		go func(ev bot.Event) {
			defer handlers.Done()
			c.dispatch(ctx, conn, ev)
		}(frame.Event)
	}
}

func (c *Client) dispatch(ctx context.Context, conn *websocket.Conn, ev bot.Event) {
	notify := func(reply bot.Reply) {
		c.writeReply(conn, ev, reply, true)
	}
	for _, reply := range c.router.Handle(ctx, ev, notify) {
		c.writeReply(conn, ev, reply, false)
	}
}

func (c *Client) writeReply(conn *websocket.Conn, ev bot.Event, reply bot.Reply, interim bool) {
	frame := outboundFrame{
		Type:    "reply",
		ChatID:  ev.ChatID,
		IsGroup: ev.IsGroup,
		Kind:    reply.Kind,
		Text:    reply.Text,
		Interim: interim,
	}
	if reply.Kind == bot.ReplyImage {
		data, err := c.artifacts.Read(reply.ImagePath)
		if err != nil {
			log.Printf("platform: reading artifact %s: %v", reply.ImagePath, err)
			return
		}
		frame.Image = data
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("platform: reply write failed: %v", err)
	}
}
