package yeelight

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestFlowExpression(t *testing.T) {
	steps := []FlowStep{
		{Duration: 500 * time.Millisecond, Mode: FlowModeColor, Value: 0xff0000, Brightness: 100},
		{Duration: 300 * time.Millisecond, Mode: FlowModeColor, Value: 0x0000ff, Brightness: 1},
	}
	assert.Equal(t, "500,1,16711680,100,300,1,255,1", FlowExpression(steps))
}

func TestFlowExpressionClampsShortSteps(t *testing.T) {
	steps := []FlowStep{
		{Duration: 10 * time.Millisecond, Mode: FlowModeColor, Value: 0xffffff, Brightness: 100},
	}
	assert.Equal(t, "50,1,16777215,100", FlowExpression(steps))
}

func TestParseSearchReply(t *testing.T) {
	reply := "HTTP/1.1 200 OK\r\n" +
		"Cache-Control: max-age=3600\r\n" +
		"Location: yeelight://192.168.1.42:55443\r\n" +
		"id: 0x0000000007fb2d9f\r\n" +
		"model: color\r\n" +
		"name: bedroom\r\n" +
		"support: get_prop set_power set_bright set_rgb start_cf stop_cf\r\n" +
		"\r\n"
	dev, err := parseSearchReply([]byte(reply))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.42:55443", dev.Address)
	assert.Equal(t, "0x0000000007fb2d9f", dev.ID)
	assert.Equal(t, "color", dev.Model)
	assert.Equal(t, "bedroom", dev.Name)
}

func TestParseSearchReplyRejectsGarbage(t *testing.T) {
	for name, reply := range map[string]string{
		"not http":     "NOTIFY * HTTP/1.1\r\n\r\n",
		"no location":  "HTTP/1.1 200 OK\r\nid: 1\r\n\r\n",
		"bad location": "HTTP/1.1 200 OK\r\nLocation: http://192.168.1.42\r\n\r\n",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseSearchReply([]byte(reply))
			assert.Error(t, err)
		})
	}
}

// fakeBulb is a minimal in-process bulb implementing the TCP command
// protocol for client tests.
type fakeBulb struct {
	listener net.Listener
	props    map[string]string
}

func newFakeBulb(t *testing.T) *fakeBulb {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fb := &fakeBulb{
		listener: ln,
		props: map[string]string{
			"power":   "off",
			"bright":  "50",
			"rgb":     "65280",
			"flowing": "0",
		},
	}
	t.Cleanup(func() { ln.Close() })
	go fb.serve()
	return fb
}

func (fb *fakeBulb) addr() string {
	return fb.listener.Addr().String()
}

func (fb *fakeBulb) serve() {
	for {
		conn, err := fb.listener.Accept()
		if err != nil {
			return
		}
		go fb.handle(conn)
	}
}

func (fb *fakeBulb) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var cmd Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			return
		}
		res := Result{ID: cmd.ID}
		switch cmd.Method {
		case "get_prop":
			for _, p := range cmd.Params {
				res.Result = append(res.Result, fb.props[p.(string)])
			}
		case "set_power", "set_bright", "set_rgb", "start_cf", "stop_cf":
			res.Result = []any{"ok"}
		default:
			res.Error = &Error{Code: -1, Message: "method not supported"}
		}
		payload, _ := json.Marshal(res)
		fmt.Fprintf(conn, "%s\r\n", payload)
	}
}

func TestClientGetProperties(t *testing.T) {
	bulb := newFakeBulb(t)
	client := NewClient(bulb.addr(), testLogger())

	props, err := client.GetProperties(context.Background())
	require.NoError(t, err)
	assert.False(t, props.Power)
	assert.Equal(t, 50, props.Brightness)
	assert.Equal(t, 0x00ff00, props.RGB)
	assert.False(t, props.Flowing)
}

func TestClientCommands(t *testing.T) {
	bulb := newFakeBulb(t)
	client := NewClient(bulb.addr(), testLogger())
	ctx := context.Background()

	require.NoError(t, client.SetPower(ctx, true))
	require.NoError(t, client.SetBrightness(ctx, 80))
	require.NoError(t, client.SetColor(ctx, 255, 0, 0))
	require.NoError(t, client.StartFlow(ctx, 2, []FlowStep{
		{Duration: 300 * time.Millisecond, Mode: FlowModeColor, Value: 0xff0000, Brightness: 100},
	}))
	require.NoError(t, client.StopFlow(ctx))
}

func TestClientSkipsInterleavedNotifications(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	// The bulb pushes a state-change notification before every reply.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var cmd Command
			if json.Unmarshal(scanner.Bytes(), &cmd) != nil {
				return
			}
			note, _ := json.Marshal(Notification{Method: "props", Params: map[string]any{"power": "on"}})
			fmt.Fprintf(conn, "%s\r\n", note)
			payload, _ := json.Marshal(Result{ID: cmd.ID, Result: []any{"ok"}})
			fmt.Fprintf(conn, "%s\r\n", payload)
		}
	}()

	client := NewClient(ln.Addr().String(), testLogger())
	require.NoError(t, client.SetPower(context.Background(), true))
	require.NoError(t, client.SetBrightness(context.Background(), 40))
}

func TestClientDeviceError(t *testing.T) {
	bulb := newFakeBulb(t)
	client := NewClient(bulb.addr(), testLogger())

	_, err := client.call(context.Background(), "set_music", []any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not supported")
}

func TestClientUnreachableBulb(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client := NewClient(addr, testLogger())
	_, err = client.GetProperties(context.Background())
	assert.Error(t, err)
}

func TestNewClientAppendsDefaultPort(t *testing.T) {
	client := NewClient("192.168.1.42", testLogger())
	assert.Equal(t, "192.168.1.42:55443", client.Address())

	client = NewClient("192.168.1.42:1234", testLogger())
	assert.Equal(t, "192.168.1.42:1234", client.Address())
}
