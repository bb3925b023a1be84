package dns

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup_LiteralIP(t *testing.T) {
	r := NewResolver()

	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)
}

func TestLookup_Localhost(t *testing.T) {
	r := &Resolver{LocalTimeout: NewResolver().LocalTimeout}

	ip, err := r.Lookup(context.Background(), "localhost")
	require.NoError(t, err)
	require.True(t, net.ParseIP(ip).IsLoopback(), ip)
}

func TestDialContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	conn, err := NewResolver().DialContext(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = NewResolver().DialContext(context.Background(), "tcp", "missing-port")
	require.Error(t, err)
}
