package lsp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msgs := []string{`{"jsonrpc":"2.0","method":"initialized"}`, `{"jsonrpc":"2.0","id":1,"result":"ü"}`}
	for _, m := range msgs {
		if err := writeMessage(&buf, []byte(m)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if !strings.HasPrefix(buf.String(), "Content-Length: 40\r\n\r\n") {
		t.Fatalf("header = %q", buf.String()[:24])
	}
	r := bufio.NewReader(&buf)
	for _, want := range msgs {
		got, err := readMessage(r)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(got) != want {
			t.Fatalf("payload = %s, want %s", got, want)
		}
	}
	if _, err := readMessage(r); !errors.Is(err, io.EOF) {
		t.Fatalf("after last message err = %v", err)
	}
}

func TestReadMessageHeaders(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{"content type ignored", "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: 2\r\n\r\n{}", "{}", nil},
		{"lower case name", "content-length: 2\r\n\r\n[]", "[]", nil},
		{"blank lines before header", "\r\n\r\nContent-Length: 1\r\n\r\n1", "1", nil},
		{"bare newlines", "Content-Length: 4\n\nnull", "null", nil},
		{"no length", "Content-Type: x\r\n\r\n{}", "", errMissingLength},
		{"no length before another message", "Content-Type: x\r\n\r\n\r\nContent-Length: 2\r\n\r\n[]", "", errMissingLength},
		{"truncated header", "Content-Length: 2", "", io.ErrUnexpectedEOF},
		{"truncated body", "Content-Length: 10\r\n\r\n{}", "", io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readMessage(bufio.NewReader(strings.NewReader(tt.raw)))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || string(got) != tt.want {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

func TestReadMessageRejectsBadLength(t *testing.T) {
	for _, raw := range []string{"Content-Length: abc\r\n\r\n", "Content-Length: -1\r\n\r\n", "Content-Length: 999999999999\r\n\r\n"} {
		if _, err := readMessage(bufio.NewReader(strings.NewReader(raw))); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
}
