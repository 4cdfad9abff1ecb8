package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"civforge.ai/internal/protocol"
)

// serverError is an ERROR message returned by the server, or a bare status
// when the body could not be decoded as one.
type serverError struct {
	Status int
	Msg    protocol.ErrorMsg
}

func (e *serverError) Error() string {
	if e.Msg.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s: %s", e.Status, e.Msg.Code, e.Msg.Message)
}

type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(baseURL string, timeout time.Duration) adminClient {
	return adminClient{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// do sends one request and decodes a 2xx body into out. Other statuses are
// decoded as protocol.ErrorMsg.
func (c adminClient) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		se := &serverError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, &se.Msg)
		return se
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c adminClient) bootstrap() (protocol.BootstrapMsg, error) {
	var msg protocol.BootstrapMsg
	if err := c.do(http.MethodGet, "/v1/terrain/bootstrap", &msg); err != nil {
		return msg, err
	}
	if msg.Type != protocol.TypeBootstrap {
		return msg, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return msg, nil
}

func (c adminClient) reset() (protocol.AckMsg, error) {
	var ack protocol.AckMsg
	if err := c.do(http.MethodPost, "/v1/terrain/reset", &ack); err != nil {
		return ack, err
	}
	if !ack.Accepted {
		return ack, fmt.Errorf("reset rejected: %s: %s", ack.Code, ack.Message)
	}
	return ack, nil
}

func formatBootstrap(msg protocol.BootstrapMsg) string {
	var b strings.Builder
	wp, lim := msg.WorldParams, msg.Limits
	fmt.Fprintf(&b, "protocol %s\n", msg.ProtocolVersion)
	fmt.Fprintf(&b, "seed     %q  size %d  sea level %.2f\n", wp.Seed, wp.WorldSize, wp.SeaLevel)
	fmt.Fprintf(&b, "chunks   %d cells, blocks of %d, coverage stride %d, lods %v\n",
		wp.ChunkSize, wp.BlockSize, wp.CoverageStride, wp.LODs)
	fmt.Fprintf(&b, "biomes   %s\n", strings.Join(wp.Biomes, ", "))
	fmt.Fprintf(&b, "limits   %d chunks/request, %d viewport cells, %s payload\n",
		lim.MaxChunksPerRequest, lim.MaxViewportCells, humanize.IBytes(uint64(lim.MaxPayloadBytes)))
	return b.String()
}

func bootstrapCmd(args []string) {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	msg, err := newAdminClient(*baseURL, 5*time.Second).bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap:", err)
		os.Exit(1)
	}
	fmt.Print(formatBootstrap(msg))
}

// resetCmd clears the overlay and chunk cache of a running server.
func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	ack, err := newAdminClient(*baseURL, 10*time.Second).reset()
	if err != nil {
		fmt.Fprintln(os.Stderr, "reset:", err)
		os.Exit(1)
	}
	fmt.Printf("%s accepted\n", ack.AckFor)
}
