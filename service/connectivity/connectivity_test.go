package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func listen(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func fastChecker(host string, port int) *Checker {
	c := NewChecker(host, port, discardLogger())
	c.timeout = 200 * time.Millisecond
	c.baseDelay = time.Millisecond
	return c
}

func TestCheckQuickReachable(t *testing.T) {
	host, port := listen(t)
	c := fastChecker(host, port)
	if !c.CheckQuick(context.Background()) {
		t.Fatal("expected reachable")
	}
}

func TestCheckQuickUnreachable(t *testing.T) {
	// Port 1 on loopback is assumed closed.
	c := fastChecker("127.0.0.1", 1)
	if c.CheckQuick(context.Background()) {
		t.Fatal("expected unreachable")
	}
}

func TestCheckRetriesThenFails(t *testing.T) {
	c := fastChecker("127.0.0.1", 1)
	start := time.Now()
	if c.Check(context.Background()) {
		t.Fatal("expected unreachable")
	}
	// 1 immediate attempt + 2 retries with 1ms/2ms delays should be fast.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("check took too long: %v", elapsed)
	}
}

func TestCheckReachable(t *testing.T) {
	host, port := listen(t)
	c := fastChecker(host, port)
	if !c.Check(context.Background()) {
		t.Fatal("expected reachable")
	}
}

func TestCheckHonorsContextCancel(t *testing.T) {
	c := fastChecker("127.0.0.1", 1)
	c.baseDelay = time.Hour // force the retry wait to block

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- c.Check(ctx) }()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("cancelled check reported reachable")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("check did not return after cancellation")
	}
}
