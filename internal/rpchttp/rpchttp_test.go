package rpchttp

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
)

func TestConfigAddrDefaultsPort(t *testing.T) {
	cfg := Config{Hostname: "gw.example.com"}
	if got, want := cfg.addr(), "gw.example.com:443"; got != want {
		t.Fatalf("addr() = %q, want %q", got, want)
	}
}

func TestBaseHeadersIncludesMandatoryFields(t *testing.T) {
	ch := &Channel{cfg: Config{Hostname: "gw.example.com"}}
	h := ch.baseHeaders(inChannelContentLength)

	for key, want := range map[string]string{
		"Accept":         "application/rpc",
		"Cache-Control":  "no-cache",
		"Connection":     "Keep-Alive",
		"User-Agent":     "MSRPC",
		"Host":           "gw.example.com",
		"Content-Length": "1073741824",
	} {
		if got := h.Get(key); got != want {
			t.Fatalf("header %q = %q, want %q", key, got, want)
		}
	}
	if !strings.Contains(h.Get("Pragma"), "ResourceTypeUuid="+ResourceTypeUUID) {
		t.Fatalf("Pragma header missing ResourceTypeUuid: %q", h.Get("Pragma"))
	}
	if !strings.Contains(h.Get("Pragma"), "SessionId=") {
		t.Fatalf("Pragma header missing SessionId: %q", h.Get("Pragma"))
	}
}

func TestWWWAuthenticateNTLMParsesToken(t *testing.T) {
	resp := &http.Response{Header: make(http.Header)}
	resp.Header.Set("Www-Authenticate", "NTLM TlRMTVNTUAAB")
	tok, ok := wwwAuthenticateNTLM(resp)
	if !ok {
		t.Fatalf("expected NTLM challenge detected")
	}
	if len(tok) == 0 {
		t.Fatalf("expected decoded token bytes")
	}
}

func TestWWWAuthenticateNTLMBareHeader(t *testing.T) {
	resp := &http.Response{Header: make(http.Header)}
	resp.Header.Set("Www-Authenticate", "NTLM")
	tok, ok := wwwAuthenticateNTLM(resp)
	if !ok || tok != nil {
		t.Fatalf("expected bare NTLM header recognized with nil token, got ok=%v tok=%v", ok, tok)
	}
}

func TestWWWAuthenticateNTLMAbsent(t *testing.T) {
	resp := &http.Response{Header: make(http.Header)}
	resp.Header.Set("Www-Authenticate", "Basic realm=\"gateway\"")
	if _, ok := wwwAuthenticateNTLM(resp); ok {
		t.Fatalf("expected no NTLM challenge detected")
	}
}

func TestWriteHeadersFormat(t *testing.T) {
	var sb strings.Builder
	h := make(http.Header)
	h.Set("Accept", "application/rpc")
	if err := writeHeaders(&sb, h); err != nil {
		t.Fatalf("writeHeaders: %v", err)
	}
	r := bufio.NewReader(strings.NewReader(sb.String()))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if strings.TrimSpace(line) != "Accept: application/rpc" {
		t.Fatalf("unexpected header line: %q", line)
	}
}
