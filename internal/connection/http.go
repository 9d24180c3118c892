package connection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/compress"
	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/event"
)

const transportHTTP = "http"

// HTTPConnection POSTs events as JSON to a reporting endpoint
type HTTPConnection struct {
	url         string
	timeout     time.Duration
	compression string
	headers     map[string]string
	client      *fasthttp.Client
	logger      *zap.Logger
}

// NewHTTPConnection creates an HTTP transport
func NewHTTPConnection(cfg configtypes.HTTPTransportConfig, logger *zap.Logger) (*HTTPConnection, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http transport url is required")
	}

	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = configtypes.DefaultHTTPTimeout
	}

	return &HTTPConnection{
		url:         cfg.URL,
		timeout:     timeout,
		compression: cfg.Compression,
		headers:     cfg.Headers,
		client: &fasthttp.Client{
			Name:                "eventrelay",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Send delivers one event. Any non-2xx response is a delivery failure.
func (h *HTTPConnection) Send(ev *event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return h.deliveryError(ev, err)
	}

	body, encoding, err := compress.Compress(payload, h.compression)
	if err != nil {
		return h.deliveryError(ev, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(h.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if encoding != "" {
		req.Header.Set(fasthttp.HeaderContentEncoding, encoding)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := h.client.DoTimeout(req, resp, h.timeout); err != nil {
		return h.deliveryError(ev, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return h.deliveryError(ev, fmt.Errorf("unexpected status %d", status))
	}

	h.logger.Debug("Event sent over HTTP",
		zap.String("event_id", ev.ID),
		zap.Int("status", status),
		zap.Int("bytes", len(body)))
	return nil
}

// Close drops idle keep-alive connections
func (h *HTTPConnection) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func (h *HTTPConnection) deliveryError(ev *event.Event, err error) error {
	return &DeliveryError{EventID: ev.ID, Transport: transportHTTP, Err: err}
}
