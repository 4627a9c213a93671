package yeelight

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	dialTimeout    = 5 * time.Second
	requestTimeout = 5 * time.Second

	// smoothDuration is the transition time sent with set_* commands
	smoothDuration = 500 * time.Millisecond
)

// The device-side quota is 60 commands per minute; the limiter refills at
// that rate and allows the full quota as burst.
const commandBurst = 60

var commandQuota = rate.Every(time.Minute / commandBurst)

// Client handles TCP communication with a single Yeelight bulb. All calls
// are serialized on one connection; the connection is dialed on demand and
// dropped on any error so the next call redials.
type Client struct {
	addr    string
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int32
}

// NewClient creates a client for the bulb at address. A bare host gets the
// default command port appended.
func NewClient(address string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}
	return &Client{
		addr:    address,
		logger:  logger,
		limiter: rate.NewLimiter(commandQuota, commandBurst),
	}
}

// Address returns the bulb's host:port.
func (c *Client) Address() string {
	return c.addr
}

// GetProperties retrieves the live state of the bulb.
func (c *Client) GetProperties(ctx context.Context) (*Properties, error) {
	res, err := c.call(ctx, "get_prop", []any{"power", "bright", "rgb", "flowing"})
	if err != nil {
		return nil, err
	}
	if len(res.Result) != 4 {
		return nil, fmt.Errorf("get_prop: unexpected reply %v", res.Result)
	}
	fields := make([]string, 4)
	for i, v := range res.Result {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("get_prop: unexpected reply %v", res.Result)
		}
		fields[i] = s
	}
	brightness, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("get_prop: bad brightness %q", fields[1])
	}
	rgb, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("get_prop: bad rgb %q", fields[2])
	}
	props := &Properties{
		Power:      fields[0] == "on",
		Brightness: brightness,
		RGB:        rgb,
		Flowing:    fields[3] == "1",
	}
	c.logger.Debug("bulb: get_prop", "addr", c.addr, "props", props)
	return props, nil
}

// SetPower turns the bulb on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	_, err := c.call(ctx, "set_power", []any{state, "smooth", smoothDuration.Milliseconds()})
	return err
}

// SetBrightness sets the brightness (1-100).
func (c *Client) SetBrightness(ctx context.Context, brightness int) error {
	_, err := c.call(ctx, "set_bright", []any{brightness, "smooth", smoothDuration.Milliseconds()})
	return err
}

// SetColor sets an RGB color.
func (c *Client) SetColor(ctx context.Context, r, g, b uint8) error {
	packed := int(r)<<16 | int(g)<<8 | int(b)
	_, err := c.call(ctx, "set_rgb", []any{packed, "smooth", smoothDuration.Milliseconds()})
	return err
}

// StartFlow starts a flow program. count is the number of times the program
// repeats; 0 loops forever. The wire count is the total number of visible
// state changes, so a finite count is multiplied by the step count.
func (c *Client) StartFlow(ctx context.Context, count int, steps []FlowStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("start_cf: empty flow")
	}
	total := 0
	if count > 0 {
		total = count * len(steps)
	}
	_, err := c.call(ctx, "start_cf", []any{total, 0, FlowExpression(steps)})
	return err
}

// StopFlow stops any running flow program.
func (c *Client) StopFlow(ctx context.Context) error {
	_, err := c.call(ctx, "stop_cf", []any{})
	return err
}

// call sends one command and waits for its reply, discarding any
// notifications interleaved on the connection.
func (c *Client) call(ctx context.Context, method string, params []any) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.dropLocked()
		return nil, err
	}

	c.nextID++
	cmd := Command{ID: c.nextID, Method: method, Params: params}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("bulb: sending command", "addr", c.addr, "method", method, "payload", string(payload))

	if _, err := c.conn.Write(append(payload, '\r', '\n')); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("%s: write failed: %w", method, err)
	}

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("%s: read failed: %w", method, err)
		}
		line = []byte(strings.TrimSpace(string(line)))
		if len(line) == 0 {
			continue
		}

		// Unsolicited notifications carry a method field; skip them.
		var note Notification
		if err := json.Unmarshal(line, &note); err == nil && note.Method != "" {
			c.logger.Debug("bulb: notification", "addr", c.addr, "method", note.Method, "params", note.Params)
			continue
		}

		var res Result
		if err := json.Unmarshal(line, &res); err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("%s: bad reply: %w", method, err)
		}
		if res.ID != cmd.ID {
			continue
		}
		if res.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, res.Error)
		}
		return &res, nil
	}
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("cannot connect to bulb %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Close drops the connection. The client remains usable; the next call
// redials.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}
