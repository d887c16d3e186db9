package main

import (
	"bufio"
	"bytes"
	"chat-relay/domain"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	gorilla "github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

var errBadLine = stderrors.New("expected: @<user_id> <message>")

type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"http://localhost:8080"`
	Username  string `envconfig:"CHAT_USERNAME" required:"true"`
	Password  string `envconfig:"CHAT_PASSWORD" required:"true"`
	// CHAT_REGISTER creates the account before logging in
	Register bool `envconfig:"CHAT_REGISTER" default:"false"`
	Colours  bool `envconfig:"CHAT_COLOURS" default:"true"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID       domain.UserID `json:"id"`
		Username string        `json:"username"`
	} `json:"user"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run logs in over HTTP, then relays stdin lines to the websocket and prints what comes back.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	if config.Register {
		if err := postCredentials(ctx, httpClient, config.ServerURL+"/register", config, nil); err != nil {
			return exitRuntime, fmt.Errorf("register failed: %w", err)
		}
	}
	var login loginResponse
	if err := postCredentials(ctx, httpClient, config.ServerURL+"/login", config, &login); err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}

	wsURL, err := websocketURL(config.ServerURL)
	if err != nil {
		return exitConfig, err
	}
	conn, _, err := gorilla.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", wsURL, err)
	}
	defer func() { _ = conn.Close() }()

	// The token travels as the first frame so it never shows up in access logs
	if err = conn.WriteMessage(gorilla.TextMessage, []byte(login.AccessToken)); err != nil {
		return exitRuntime, fmt.Errorf("authentication failed: %w", err)
	}
	color.Green.Printf(">>> Connected as %s (#%d). Send with @<user_id> <message>, Ctrl+C to quit\n",
		login.User.Username, login.User.ID)

	done := make(chan error, 1)
	go func() { done <- receive(conn, login.User.ID) }()
	go send(ctx, conn, os.Stdin)

	select {
	case <-ctx.Done():
		_ = conn.WriteControl(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return exitOK, nil
	case err = <-done:
		if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
			return exitOK, nil
		}
		return exitRuntime, err
	}
}

func postCredentials(ctx context.Context, client *http.Client, endpoint string, config Config, out any) error {
	body, err := json.Marshal(map[string]string{"username": config.Username, "password": config.Password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func send(ctx context.Context, conn *gorilla.Conn, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame, err := parseLine(line)
		if err != nil {
			color.Red.Println(err)
			continue
		}
		if err = conn.WriteJSON(frame); err != nil {
			color.Red.Printf("send failed: %v\n", err)
			return
		}
	}
}

// parseLine turns "@<user_id> <message>" into an inbound frame.
func parseLine(line string) (domain.InboundFrame, error) {
	if !strings.HasPrefix(line, "@") {
		return domain.InboundFrame{}, errBadLine
	}
	target, content, found := strings.Cut(line[1:], " ")
	content = strings.TrimSpace(content)
	if !found || content == "" {
		return domain.InboundFrame{}, errBadLine
	}
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil || id <= 0 {
		return domain.InboundFrame{}, errBadLine
	}
	return domain.InboundFrame{To: domain.UserID(id), Content: content}, nil
}

func receive(conn *gorilla.Conn, self domain.UserID) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(render(payload, self))
	}
}

func render(payload []byte, self domain.UserID) string {
	var failure domain.ErrorFrame
	if err := json.Unmarshal(payload, &failure); err == nil && failure.Error != "" {
		return color.Red.Sprintf("! %s %s", failure.Error, failure.Message)
	}

	var frame domain.OutboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return string(payload)
	}
	at := frame.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, frame.Timestamp); err == nil {
		at = t.Local().Format(time.TimeOnly)
	}
	header := fmt.Sprintf("[%s] #%d (conversation %d)", at, frame.SenderID, frame.ConversationID)
	if frame.SenderID == self {
		return color.Gray.Sprint(header) + " " + frame.Content
	}
	return color.New(color.FgCyan, color.OpBold).Render(header) + " " + frame.Content
}
