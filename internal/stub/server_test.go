package stub

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/compress"
	"github.com/edgecomet/eventrelay/internal/event"
	"github.com/edgecomet/eventrelay/pkg/types"
)

func postEvent(s *Server, body []byte, encoding string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI(StorePath)
	if encoding != "" {
		ctx.Request.Header.Set(fasthttp.HeaderContentEncoding, encoding)
	}
	ctx.Request.SetBody(body)
	s.Handler(ctx)
	return ctx
}

func encodedEvent(t *testing.T, message string) (*event.Event, []byte) {
	t.Helper()
	ev := event.NewBuilder().WithMessage(message).WithServerName("test").Build()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return ev, body
}

func TestHandler_StoresEvent(t *testing.T) {
	s := New(zap.NewNop())
	ev, body := encodedEvent(t, "stored")

	ctx := postEvent(s, body, "")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"id":"`+ev.ID+`"}`, string(ctx.Response.Body()))
	require.Equal(t, 1, s.EventCount())
	assert.Equal(t, ev.ID, s.Events()[0].ID)
}

func TestHandler_DecodesCompressedBody(t *testing.T) {
	s := New(zap.NewNop())
	message := strings.Repeat("compressed ", 200)
	_, body := encodedEvent(t, message)

	compressed, encoding, err := compress.Compress(body, types.CompressionSnappy)
	require.NoError(t, err)
	require.Equal(t, compress.EncodingSnappy, encoding)

	ctx := postEvent(s, compressed, encoding)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	require.Equal(t, 1, s.EventCount())
	assert.Equal(t, message, s.Events()[0].Message)
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	s := New(zap.NewNop())

	t.Run("GET", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetRequestURI(StorePath)
		s.Handler(ctx)
		assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	})

	t.Run("invalid JSON", func(t *testing.T) {
		ctx := postEvent(s, []byte("{not json"), "")
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("missing event id", func(t *testing.T) {
		ctx := postEvent(s, []byte(`{"message":"anonymous"}`), "")
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		ctx := postEvent(s, []byte("not gzip"), compress.EncodingGzip)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	assert.Equal(t, 0, s.EventCount())
}

func TestHandler_FailNext(t *testing.T) {
	s := New(zap.NewNop())
	s.FailNext(2)

	for i := 0; i < 2; i++ {
		_, body := encodedEvent(t, "fails")
		ctx := postEvent(s, body, "")
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	}

	_, body := encodedEvent(t, "passes")
	ctx := postEvent(s, body, "")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, 1, s.EventCount())
}

func TestServer_RemoveEvents(t *testing.T) {
	s := New(zap.NewNop())
	_, body := encodedEvent(t, "one")
	postEvent(s, body, "")
	require.Equal(t, 1, s.EventCount())

	s.RemoveEvents()
	assert.Equal(t, 0, s.EventCount())
	assert.Empty(t, s.Events())
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := New(zap.NewNop())
	assert.Empty(t, s.Addr())

	require.NoError(t, s.Start("127.0.0.1:0"))
	assert.NotEmpty(t, s.Addr())
	assert.True(t, strings.HasSuffix(s.URL(), StorePath))

	status, _, err := fasthttp.Get(nil, s.URL())
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, status)

	assert.NoError(t, s.Shutdown())
}

func TestServer_Serve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(zap.NewNop())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, 10*time.Millisecond)
	assert.Equal(t, ln.Addr().String(), s.Addr())

	status, _, err := fasthttp.Get(nil, s.URL())
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, status)

	require.NoError(t, s.Shutdown())
	assert.NoError(t, <-served)
}
