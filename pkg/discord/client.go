package discord

import (
	"flag"
	"net"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/slim-bean/dcs-presence/pkg/presence"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ presence.Publisher = (*Client)(nil)

// ErrNotConnected is returned by SetActivity before a successful Connect.
var ErrNotConnected = errors.New("discord ipc not connected")

type Config struct {
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ClientID, "discord.client-id", "1392523475775655936", "Discord application id the presence is published for")
	f.DurationVar(&c.Timeout, "discord.timeout", 5*time.Second, "Deadline for each exchange with the Discord client, where the platform supports it")
}

type handshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

type command struct {
	Cmd   string      `json:"cmd"`
	Args  interface{} `json:"args"`
	Nonce string      `json:"nonce"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *activity `json:"activity"`
}

type activity struct {
	State      string      `json:"state,omitempty"`
	Details    string      `json:"details,omitempty"`
	Timestamps *timestamps `json:"timestamps,omitempty"`
	Assets     *assets     `json:"assets,omitempty"`
}

type timestamps struct {
	Start int64 `json:"start,omitempty"`
}

type assets struct {
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

type response struct {
	Cmd   string              `json:"cmd"`
	Evt   string              `json:"evt"`
	Nonce string              `json:"nonce"`
	Data  jsoniter.RawMessage `json:"data"`
}

type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client publishes rich presence to the local Discord desktop client.
// It is not safe for concurrent use.
type Client struct {
	logger log.Logger
	cfg    Config
	dial   func() (net.Conn, error)
	pid    int
	conn   net.Conn
}

func New(logger log.Logger, cfg Config) *Client {
	return &Client{
		logger: log.With(logger, "component", "discord"),
		cfg:    cfg,
		dial:   func() (net.Conn, error) { return dialIPC(cfg.Timeout) },
		pid:    os.Getpid(),
	}
}

// Connect opens the IPC connection and performs the handshake. Any
// previous connection is closed first.
func (c *Client) Connect() error {
	c.drop()

	conn, err := c.dial()
	if err != nil {
		return err
	}
	if err := c.deadline(conn); err != nil {
		conn.Close()
		return err
	}

	hs, err := json.Marshal(handshake{V: 1, ClientID: c.cfg.ClientID})
	if err != nil {
		conn.Close()
		return err
	}
	if err := writeFrame(conn, opHandshake, hs); err != nil {
		conn.Close()
		return errors.Wrap(err, "sending handshake")
	}

	op, payload, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "reading handshake reply")
	}
	if op == opClose {
		conn.Close()
		return closeError(payload)
	}
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		conn.Close()
		return errors.Wrap(err, "decoding handshake reply")
	}
	if resp.Evt != "READY" {
		conn.Close()
		return errors.Errorf("unexpected handshake reply %s/%s", resp.Cmd, resp.Evt)
	}

	c.conn = conn
	level.Info(c.logger).Log("msg", "connected to discord")
	return nil
}

// SetActivity replaces the rich presence shown for this application.
func (c *Client) SetActivity(p presence.Payload) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	nonce := uuid.New().String()
	b, err := json.Marshal(command{
		Cmd:   "SET_ACTIVITY",
		Args:  activityArgs{PID: c.pid, Activity: toActivity(p)},
		Nonce: nonce,
	})
	if err != nil {
		return err
	}

	if err := c.deadline(c.conn); err != nil {
		c.drop()
		return err
	}
	if err := writeFrame(c.conn, opFrame, b); err != nil {
		c.drop()
		return errors.Wrap(err, "sending activity")
	}

	for {
		op, payload, err := readFrame(c.conn)
		if err != nil {
			c.drop()
			return errors.Wrap(err, "reading activity reply")
		}
		switch op {
		case opPing:
			if err := writeFrame(c.conn, opPong, payload); err != nil {
				c.drop()
				return errors.Wrap(err, "answering ping")
			}
			continue
		case opClose:
			c.drop()
			return closeError(payload)
		case opFrame:
		default:
			continue
		}

		var resp response
		if err := json.Unmarshal(payload, &resp); err != nil {
			return errors.Wrap(err, "decoding activity reply")
		}
		if resp.Nonce != nonce {
			level.Debug(c.logger).Log("msg", "skipping unrelated frame", "cmd", resp.Cmd, "evt", resp.Evt)
			continue
		}
		if resp.Evt == "ERROR" {
			return replyError(resp.Data)
		}
		return nil
	}
}

// Close tells the Discord client we are leaving and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	if err := c.deadline(conn); err != nil {
		conn.Close()
		return err
	}
	werr := writeFrame(conn, opClose, []byte("{}"))
	cerr := conn.Close()
	if werr != nil {
		return errors.Wrap(werr, "sending close")
	}
	return cerr
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// deadline bounds the next exchange on conn, so a client that stops
// answering fails the call instead of blocking the caller.
func (c *Client) deadline(conn net.Conn) error {
	if c.cfg.Timeout <= 0 {
		return nil
	}
	return errors.Wrap(conn.SetDeadline(time.Now().Add(c.cfg.Timeout)), "setting ipc deadline")
}

func toActivity(p presence.Payload) *activity {
	a := &activity{
		State:   p.Headline,
		Details: p.Detail,
	}
	if !p.SessionStart.IsZero() {
		a.Timestamps = &timestamps{Start: p.SessionStart.Unix()}
	}
	if p.AssetKey != "" || p.AssetLabel != "" {
		a.Assets = &assets{SmallImage: p.AssetKey, SmallText: p.AssetLabel}
	}
	return a
}

func closeError(payload []byte) error {
	var e errorData
	if err := json.Unmarshal(payload, &e); err != nil {
		return errors.New("discord closed the connection")
	}
	return errors.Errorf("discord closed the connection: %d %s", e.Code, e.Message)
}

func replyError(data []byte) error {
	var e errorData
	if err := json.Unmarshal(data, &e); err != nil {
		return errors.New("discord rejected the activity")
	}
	return errors.Errorf("discord rejected the activity: %d %s", e.Code, e.Message)
}
