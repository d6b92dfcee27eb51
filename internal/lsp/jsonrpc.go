package lsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxMessageSize bounds a single payload; larger headers are treated as a
// broken stream.
const maxMessageSize = 64 << 20

var errMissingLength = errors.New("missing Content-Length header")

func readMessage(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	headers := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if headers == 0 {
				// пустые строки между сообщениями пропускаем
				continue
			}
			break
		}
		headers++
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			length, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
			if length < 0 || length > maxMessageSize {
				return nil, fmt.Errorf("invalid Content-Length %d", length)
			}
			contentLength = length
		}
	}
	if contentLength < 0 {
		return nil, errMissingLength
	}
	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeMessage(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
