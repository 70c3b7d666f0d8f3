package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/service"
	"github.com/xiaot623/gogo/streamchat/internal/transport/sink"
)

func newChatCommand() *cobra.Command {
	var (
		addr    string
		session int64
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialChat(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			if session > 0 {
				client.session = &session
			}
			return client.Run(os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws/chat", "WebSocket endpoint")
	cmd.Flags().Int64Var(&session, "session", 0, "continue an existing conversation")
	return cmd
}

// chatClient is an interactive WebSocket client.
type chatClient struct {
	conn        *websocket.Conn
	session     *int64
	sessionsURL string
	http        *http.Client
}

func dialChat(addr string) (*chatClient, error) {
	sessionsURL, err := sessionsEndpoint(addr)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return &chatClient{
		conn:        conn,
		sessionsURL: sessionsURL,
		http:        &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// sessionsEndpoint maps the WebSocket address to the session list on the same
// server.
func sessionsEndpoint(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", errors.Wrap(err, "parse address")
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/sessions"
	u.RawQuery = ""
	return u.String(), nil
}

func (c *chatClient) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Run reads prompts from in and prints each streamed reply to out until EOF
// or /quit.
func (c *chatClient) Run(in io.Reader, out io.Writer) error {
	prompt := color.New(color.FgCyan)
	hint := color.New(color.FgHiBlack)

	hint.Fprintln(out, "Type a message and press Enter. Commands: /use <id>, /new, /quit")
	hint.Fprintln(out, "The first reply of a new conversation switches the session to it.")
	scanner := bufio.NewScanner(in)
	for {
		prompt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		case input == "/new":
			c.session = nil
			hint.Fprintln(out, "next message starts a new conversation")
			continue
		case strings.HasPrefix(input, "/use "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(input, "/use ")), 10, 64)
			if err != nil {
				color.New(color.FgRed).Fprintln(out, "invalid conversation id")
				continue
			}
			c.session = &id
			hint.Fprintf(out, "continuing conversation %d\n", id)
			continue
		}

		if err := c.conn.WriteJSON(domain.ChatRequest{SessionID: c.session, Content: input}); err != nil {
			return errors.Wrap(err, "send")
		}
		ok, err := c.readReply(out)
		if err != nil {
			return err
		}
		if ok && c.session == nil {
			id, err := c.findSession(service.Title(input))
			if err != nil {
				color.New(color.FgYellow).Fprintf(out, "could not look up the new conversation: %v\n", err)
				continue
			}
			c.session = &id
			hint.Fprintf(out, "continuing conversation %d\n", id)
		}
	}
}

// readReply prints frames until the turn's done frame. ok is false when the
// turn ended with an error.
func (c *chatClient) readReply(out io.Writer) (ok bool, err error) {
	for {
		var f sink.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return false, errors.Wrap(err, "read")
		}
		if renderFrame(out, f) {
			return f.ErrorMessage == nil, nil
		}
	}
}

// findSession returns the most recently active conversation titled title.
func (c *chatClient) findSession(title string) (int64, error) {
	resp, err := c.http.Get(c.sessionsURL)
	if err != nil {
		return 0, errors.Wrap(err, "list sessions")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("list sessions: status %d", resp.StatusCode)
	}

	var body struct {
		Sessions []domain.Conversation `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(err, "decode sessions")
	}
	for _, conv := range body.Sessions {
		if conv.Title == title {
			return conv.ID, nil
		}
	}
	return 0, errors.Errorf("no session titled %q", title)
}

// renderFrame prints one frame and reports whether it ended the turn.
func renderFrame(out io.Writer, f sink.Frame) bool {
	if !f.Done {
		color.New(color.FgGreen).Fprint(out, f.Content)
		return false
	}
	if f.ErrorMessage != nil {
		color.New(color.FgRed).Fprintf(out, "error: %s\n", *f.ErrorMessage)
		return true
	}
	fmt.Fprintln(out)
	return true
}
