package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestRunReturnsAfterCancel(t *testing.T) {
	srv := New("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)), http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	srv := New("256.0.0.1:bad", slog.New(slog.NewTextHandler(io.Discard, nil)), http.NotFoundHandler())
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected a listen error")
	}
}
