package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"ulwgl/pkg/display"
)

// Mutable
type manager struct {
	handlers map[string]SchemeHandler
}

func NewDefaultDownloader() Downloader {
	m := &manager{
		handlers: make(map[string]SchemeHandler),
	}
	m.Register(NewHTTPHandler())
	return m
}

func (m *manager) Register(h SchemeHandler) {
	for _, scheme := range h.Schemes() {
		m.handlers[scheme] = h
	}
}

func (m *manager) Download(ctx context.Context, uri string, w io.Writer, task display.Task) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid uri: %w", err)
	}

	handler, ok := m.handlers[strings.ToLower(u.Scheme)]
	if !ok {
		return fmt.Errorf("unsupported scheme: %s (runtime assets are served over https): %s", u.Scheme, uri)
	}

	return handler.Download(ctx, uri, w, task)
}
