package rtsp

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestBasic(t *testing.T) {
	raw := "OPTIONS * RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: test\r\n\r\n"
	req, n, err := ParseRequest([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, MethodOptions, req.Method)
	assert.Equal(t, "*", req.URI)
	assert.Equal(t, "1", req.Headers.Get("CSeq"))
	assert.Equal(t, "test", req.Headers.Get("user-agent"))
}

func TestParseRequestIncomplete(t *testing.T) {
	raw := "OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n"
	_, _, err := ParseRequest([]byte(raw))
	assert.True(t, errors.Is(err, ErrIncomplete))
}

func TestParseRequestMalformedVersion(t *testing.T) {
	raw := "OPTIONS * HTTP/1.1\r\n\r\n"
	_, _, err := ParseRequest([]byte(raw))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseRequestWithBody(t *testing.T) {
	body := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	raw := "ANNOUNCE rtsp://host/stream RTSP/1.0\r\nCSeq: 2\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body
	req, n, err := ParseRequest([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, []byte(body), req.Body)
}

func TestParseRequestPipelined(t *testing.T) {
	first := "OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n"
	second := "DESCRIBE rtsp://host/stream RTSP/1.0\r\nCSeq: 2\r\n\r\n"
	buf := []byte(first + second)

	req, n, err := ParseRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, MethodOptions, req.Method)
	assert.Equal(t, len(first), n)

	req2, n2, err := ParseRequest(buf[n:])
	require.NoError(t, err)
	assert.Equal(t, MethodDescribe, req2.Method)
	assert.Equal(t, len(second), n2)
}

func TestHeadersOrderedAndCaseInsensitive(t *testing.T) {
	h := Headers{}
	h.Set("CSeq", "1")
	h.Add("X-Custom", "a")
	h.Add("X-Custom", "b")
	assert.True(t, h.Has("cseq"))
	assert.Equal(t, "1", h.Get("cSeQ"))
	assert.Equal(t, "a", h.Get("X-Custom"))

	h.Set("CSeq", "2")
	assert.Equal(t, "2", h.Get("CSeq"))
	assert.Len(t, h, 3)
}

func TestRequestBytesRoundTrip(t *testing.T) {
	req := &Request{
		Method:  MethodSetup,
		URI:     "rtsp://host/stream/trackID=0",
		Version: Version,
		Headers: Headers{{Name: "CSeq", Value: "3"}, {Name: "Transport", Value: "RTP/AVP;unicast;client_port=5004-5005"}},
	}
	parsed, _, err := ParseRequest(req.Bytes())
	require.NoError(t, err)
	assert.Equal(t, req.Method, parsed.Method)
	assert.Equal(t, req.URI, parsed.URI)
	assert.Equal(t, "3", parsed.Headers.Get("CSeq"))
}

func TestResponseBytesFillsReasonPhrase(t *testing.T) {
	resp := &Response{Status: StatusOK}
	parsed, _, err := ParseResponse(resp.Bytes())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, parsed.Status)
	assert.Equal(t, "OK", parsed.Reason)
}

func TestResponseSessionStripsTimeout(t *testing.T) {
	resp := &Response{Headers: Headers{{Name: "Session", Value: "abcd1234;timeout=60"}}}
	assert.Equal(t, "abcd1234", resp.Session())
}

