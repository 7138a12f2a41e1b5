// Package rpchttp implements the minimal HTTP/1.1 transport [MS-RPCH]
// tunnels RPC traffic over: the RPC_IN_DATA/RPC_OUT_DATA request methods,
// the gateway's Pragma/SessionId header convention, and the NTLM 401
// challenge/response round trip that authenticates each channel before
// its long-poll body starts flowing (spec.md §4.4).
//
// Grounded on the HTTP-transport shape of
// other_examples/b38cae29_smnsjas-go-psrp (a WinRM/WSMan client that
// tunnels a binary RPC-like protocol over HTTP with the same
// Negotiate/NTLM 401-retry pattern this gateway uses) for the overall
// "send request, inspect WWW-Authenticate on 401, replay with token"
// shape; request method/header names and the long-poll sentinel
// Content-Length come from [MS-RPCH] §2.1.2.1/§2.1.2.2 directly, since
// the defining ncacn_http.c is not present in the retrieved original
// source (only its header, ncacn_http.h, declaring the function
// signatures with no header/body detail).
package rpchttp

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corerdp/rdpdr/internal/ntlm"
)

// Method names used for the two tunnel directions ([MS-RPCH] §2.1.2).
const (
	MethodRPCInData  = "RPC_IN_DATA"
	MethodRPCOutData = "RPC_OUT_DATA"
)

// inChannelContentLength is the sentinel Content-Length value the client
// advertises on the IN channel, signalling an effectively unbounded
// long-poll upload body ([MS-RPCH] §2.1.2.1.2).
const inChannelContentLength = 0x40000000

// ResourceTypeUUID is the fixed TSGU resource type the Pragma header
// advertises (spec.md §4.4; same literal as rpcwire.TSGUInterfaceUUID).
const ResourceTypeUUID = "44e265dd-7daf-42cd-8560-3cdb6e7a2729"

// Error kinds.
type httpError struct {
	msg string
}

func (e *httpError) Error() string { return e.msg }

// ErrNonSuccessStatus is returned when the gateway responds with anything
// other than 200 (after any NTLM round trip completes).
var ErrNonSuccessStatus = &httpError{"rpchttp: non-200 gateway response"}

// Config configures a Channel's connection to the gateway.
type Config struct {
	Hostname           string
	Port               int
	InsecureSkipVerify bool
	DialTimeout        time.Duration
	Credentials        ntlm.Credentials
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 443
	}
	return net.JoinHostPort(c.Hostname, strconv.Itoa(port))
}

// Channel is one TLS-wrapped HTTP/1.1 connection used as either the IN or
// OUT leg of the RPC-over-HTTP virtual connection. It owns the raw
// connection directly (rather than an *http.Client) because both legs
// keep a single long-poll body open for the lifetime of the channel:
// net/http's connection-pooling/transport machinery is built around
// request/response pairs that complete, which this protocol's streaming
// bodies don't do.
type Channel struct {
	cfg    Config
	conn   net.Conn
	reader *bufio.Reader

	SessionID uuid.UUID
}

// Dial opens the TLS connection but sends no HTTP request yet.
func Dial(cfg Config) (*Channel, error) {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	if dialer.Timeout == 0 {
		dialer.Timeout = 30 * time.Second
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", cfg.addr(), &tls.Config{
		ServerName:         cfg.Hostname,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in, e.g. test gateways
	})
	if err != nil {
		return nil, err
	}
	return &Channel{cfg: cfg, conn: conn, reader: bufio.NewReader(conn), SessionID: uuid.New()}, nil
}

func (c *Channel) baseHeaders(contentLength int64) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/rpc")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "Keep-Alive")
	h.Set("User-Agent", "MSRPC")
	h.Set("Host", c.cfg.Hostname)
	h.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	h.Set("Pragma", fmt.Sprintf("ResourceTypeUuid=%s, SessionId=%s", ResourceTypeUUID, c.SessionID.String()))
	return h
}

func writeRequestLine(w io.Writer, method string) error {
	_, err := fmt.Fprintf(w, "%s /rpc/rpcproxy.dll?localhost:3388 HTTP/1.1\r\n", method)
	return err
}

func writeHeaders(w io.Writer, h http.Header) error {
	for k, vs := range h {
		for _, v := range vs {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// sendHead writes the request line and headers (but no body) and reads
// back the status line + headers, leaving c.reader positioned at the
// start of the response body / channel stream.
func (c *Channel) sendHead(method string, contentLength int64, authHeader string) (status int, resp *http.Response, err error) {
	h := c.baseHeaders(contentLength)
	if authHeader != "" {
		h.Set("Authorization", authHeader)
	}
	if err := writeRequestLine(c.conn, method); err != nil {
		return 0, nil, err
	}
	if err := writeHeaders(c.conn, h); err != nil {
		return 0, nil, err
	}
	resp, err = http.ReadResponse(c.reader, nil)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp, nil
}

// wwwAuthenticateNTLM extracts the base64 NTLM token from a
// WWW-Authenticate: NTLM <token> header, if present.
func wwwAuthenticateNTLM(resp *http.Response) ([]byte, bool) {
	for _, v := range resp.Header.Values("Www-Authenticate") {
		const prefix = "NTLM "
		if strings.HasPrefix(v, prefix) {
			tok, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v[len(prefix):]))
			if err == nil {
				return tok, true
			}
			return nil, true
		}
		if v == "NTLM" {
			return nil, true
		}
	}
	return nil, false
}

// Authenticate performs the NTLM 401 round trip over this channel: send
// the request with the NTLM Negotiate token in its Authorization header,
// receive a 401 carrying the server's Type 2 Challenge, then replay the
// request with the Authenticate token. method
// and contentLength describe the final (successful) request this replay
// produces; on return the channel's body stream is open and ready for
// Send/the caller's long-poll read loop.
func (c *Channel) Authenticate(method string, contentLength int64) (*ntlm.Context, *http.Response, error) {
	ctx := ntlm.New(c.cfg.Credentials)

	negotiate, _, err := ctx.InitSecurityContext(c.cfg.Hostname, nil)
	if err != nil {
		return nil, nil, err
	}
	negHeader := "NTLM " + base64.StdEncoding.EncodeToString(negotiate)

	status, resp, err := c.sendHead(method, contentLength, negHeader)
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusUnauthorized {
		if status != http.StatusOK {
			return nil, resp, ErrNonSuccessStatus
		}
		return ctx, resp, nil
	}
	drainBody(resp)

	challengeToken, ok := wwwAuthenticateNTLM(resp)
	if !ok || challengeToken == nil {
		return nil, resp, ErrNonSuccessStatus
	}

	authenticate, _, err := ctx.InitSecurityContext(c.cfg.Hostname, challengeToken)
	if err != nil {
		return nil, nil, err
	}
	authHeader := "NTLM " + base64.StdEncoding.EncodeToString(authenticate)

	status, resp, err = c.sendHead(method, contentLength, authHeader)
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK {
		return nil, resp, ErrNonSuccessStatus
	}
	return ctx, resp, nil
}

func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}

// Write sends raw bytes over the open channel stream (the RTS/RPC PDU
// bytes for the IN channel's long-poll upload body).
func (c *Channel) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Reader exposes the buffered reader positioned at the channel's response
// body stream for the OUT channel's long-poll download.
func (c *Channel) Reader() *bufio.Reader {
	return c.reader
}

// Close closes the underlying TLS connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// OpenInChannel dials and authenticates the IN channel, sending
// RPC_IN_DATA with the long-poll sentinel Content-Length.
func OpenInChannel(cfg Config) (*Channel, *ntlm.Context, error) {
	ch, err := Dial(cfg)
	if err != nil {
		return nil, nil, err
	}
	ctx, _, err := ch.Authenticate(MethodRPCInData, inChannelContentLength)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return ch, ctx, nil
}

// OpenOutChannel dials and authenticates the OUT channel, sending
// RPC_OUT_DATA with a zero-length request body (the download direction).
func OpenOutChannel(cfg Config) (*Channel, *ntlm.Context, error) {
	ch, err := Dial(cfg)
	if err != nil {
		return nil, nil, err
	}
	ctx, _, err := ch.Authenticate(MethodRPCOutData, 0)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return ch, ctx, nil
}
