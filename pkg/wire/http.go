package wire

import (
	"bytes"
	"io"
	"net/http/httputil"
	"strconv"
	"strings"
)

const crlf = "\r\n"

// buildRequest renders a complete HTTP/1.1 request. The connection is
// closed by the server after the reply so the body can be read to EOF.
func buildRequest(method, path, host string, port int, auth string, body []byte) []byte {
	var b bytes.Buffer
	b.Grow(256 + len(body))
	b.WriteString(method + " " + path + " HTTP/1.1" + crlf)
	b.WriteString("Host: " + host + ":" + strconv.Itoa(port) + crlf)
	if auth != "" {
		b.WriteString("Authorization: " + auth + crlf)
	}
	if body != nil {
		b.WriteString("Content-Type: application/json" + crlf)
	}
	b.WriteString("Accept: application/json" + crlf)
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + crlf)
	b.WriteString("Connection: close" + crlf)
	b.WriteString(crlf)
	b.Write(body)
	return b.Bytes()
}

// reply is a raw HTTP response split into its parts.
type reply struct {
	status int
	reason string
	header map[string]string
	body   []byte
}

// parseReply splits raw at the first blank line, validates the status line
// and removes the transfer framing from the body.
func parseReply(raw []byte) (*reply, error) {
	idx := bytes.Index(raw, []byte(crlf+crlf))
	if idx < 0 {
		return nil, malformed("missing header terminator in %q", snippet(raw))
	}
	lines := strings.Split(string(raw[:idx]), crlf)

	status := strings.SplitN(lines[0], " ", 3)
	if len(status) < 2 || !strings.HasPrefix(status[0], "HTTP/") {
		return nil, malformed("bad status line %q", lines[0])
	}
	code, err := strconv.Atoi(status[1])
	if err != nil {
		return nil, malformed("bad status code in %q", lines[0])
	}
	r := &reply{status: code, header: make(map[string]string, len(lines))}
	if len(status) == 3 {
		r.reason = status[2]
	}
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		r.header[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	body := raw[idx+len(crlf+crlf):]
	switch {
	case strings.Contains(strings.ToLower(r.header["transfer-encoding"]), "chunked"):
		decoded, err := decodeChunked(body)
		if err != nil {
			// Servers that mis-frame chunks still send one JSON document.
			obj, ok := ExtractOutermostObject(body)
			if !ok {
				return nil, malformed("chunked body: %v", err)
			}
			decoded = obj
		}
		r.body = decoded
	case r.header["content-length"] != "":
		n, err := strconv.Atoi(r.header["content-length"])
		if err != nil || n < 0 {
			return nil, malformed("bad content-length %q", r.header["content-length"])
		}
		if len(body) < n {
			return nil, malformed("body truncated: got %d of %d bytes", len(body), n)
		}
		r.body = body[:n]
	default:
		r.body = body
	}
	return r, nil
}

func decodeChunked(body []byte) ([]byte, error) {
	return io.ReadAll(httputil.NewChunkedReader(bytes.NewReader(body)))
}

// ExtractOutermostObject returns the bytes from the first '{' to the last
// '}' of body. It recovers a JSON document from a chunked body without
// decoding the chunk framing, and is only correct when no chunk boundary
// falls inside the document: a boundary splits the document with the hex
// size line, which ends up embedded in the result.
func ExtractOutermostObject(body []byte) ([]byte, bool) {
	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, false
	}
	return body[start : end+1], true
}
