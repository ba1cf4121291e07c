package server

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	storetesting "github.com/ValentinKolb/dLock/lib/store/testing"
	"github.com/ValentinKolb/dLock/rpc/client"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/http"
	"github.com/ValentinKolb/dLock/rpc/transport/tcp"
	"github.com/ValentinKolb/dLock/rpc/transport/unix"
)

// startServer serves an empty server on endpoint until the test ends
func startServer(t *testing.T, tr transport.IRPCServerTransport, ser serializer.IRPCSerializer, endpoint, network string) *RPCServer {
	t.Helper()

	srv := NewRPCServer(common.ServerConfig{
		TimeoutSecond: 5,
		LogLevel:      "error",
		DataDir:       t.TempDir(),
		Transport:     common.ServerTransportConfig{Endpoint: endpoint, WorkersPerConn: 4, TCPConf: common.TCPConf{TCPLingerSec: -1}},
	}, tr, ser)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
		_ = srv.Close()
	})

	// wait until the listener is up
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial(network, endpoint)
		if err == nil {
			_ = conn.Close()
			return srv
		}
		if time.Now().After(deadline) {
			t.Fatalf("server on %s did not come up: %v", endpoint, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// freeTCPAddr returns a local address that was free a moment ago
func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// storeFactory registers a fresh shard per test and connects a client to it
func storeFactory(srv *RPCServer, endpoint string, newTransport func() transport.IRPCClientTransport, ser serializer.IRPCSerializer) storetesting.StoreFactory {
	var nextShard atomic.Uint64
	return func(t *testing.T) store.IStore {
		shardID := nextShard.Add(1)
		srv.AddShard(shardID, lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }))

		s, err := client.NewRPCStore(shardID, common.ClientConfig{
			TimeoutSecond: 5,
			Transport: common.ClientTransportConfig{
				Endpoints:              []string{endpoint},
				RetryCount:             2,
				ConnectionsPerEndpoint: 2,
				TCPConf:                common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
			},
		}, newTransport(), ser)
		if err != nil {
			t.Fatalf("NewRPCStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
}

func TestRPCStoreOverUnixSocket(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "dlock.sock")
	ser := serializer.NewBinarySerializer()
	srv := startServer(t, unix.NewUnixDefaultServerTransport(), ser, endpoint, "unix")

	storetesting.RunStoreTests(t, "UnixBinary", storeFactory(srv, endpoint, unix.NewUnixClientTransport, ser))
}

func TestRPCStoreOverTCP(t *testing.T) {
	endpoint := freeTCPAddr(t)
	ser := serializer.NewJSONSerializer()
	srv := startServer(t, tcp.NewTCPDefaultServerTransport(), ser, endpoint, "tcp")

	storetesting.RunStoreTests(t, "TCPJSON", storeFactory(srv, endpoint, tcp.NewTCPClientTransport, ser))
}

func TestRPCStoreOverHTTP(t *testing.T) {
	endpoint := freeTCPAddr(t)
	ser := serializer.NewBinarySerializer()
	srv := startServer(t, http.NewHttpServerTransport(), ser, endpoint, "tcp")

	storetesting.RunStoreTests(t, "HTTPBinary", storeFactory(srv, "http://"+endpoint, http.NewHttpClientTransport, ser))
}

func TestUnknownShard(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "dlock.sock")
	ser := serializer.NewBinarySerializer()
	startServer(t, unix.NewUnixDefaultServerTransport(), ser, endpoint, "unix")

	s, err := client.NewRPCStore(4711, common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{endpoint}},
	}, unix.NewUnixClientTransport(), ser)
	if err != nil {
		t.Fatalf("NewRPCStore: %v", err)
	}
	defer s.Close()

	_, _, err = s.Get(context.Background(), "key")
	if code := store.CodeOf(err); code != store.RetCInternalError {
		t.Errorf("Get on unknown shard: code %s, err %v", code, err)
	}
}

func TestSQLiteShard(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	dir := t.TempDir()
	endpoint := filepath.Join(dir, "dlock.sock")

	srv := NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: 7, Type: common.ShardTypeSQLiteIStore}},
		TimeoutSecond: 5,
		LogLevel:      "error",
		DataDir:       dir,
		Transport:     common.ServerTransportConfig{Endpoint: endpoint},
	}, unix.NewUnixDefaultServerTransport(), ser)
	defer srv.Close()

	if err := srv.init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	shard, ok := srv.shards.Load(7)
	if !ok {
		t.Fatalf("sqlite shard was not created")
	}

	resp := srv.handle(context.Background(), 7, mustSerialize(t, ser, common.NewPutIfRequest("k", []byte("v"), db.VersionAbsent)))
	var msg common.Message
	if err := ser.Deserialize(resp, &msg); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if msg.ResponseError() != nil || msg.Version == 0 {
		t.Fatalf("PutIf response = %+v", msg)
	}

	doc, ok, err := shard.Store.Get(context.Background(), "k")
	if err != nil || !ok || doc.Version != msg.Version {
		t.Errorf("Get = (%+v, %v, %v)", doc, ok, err)
	}
}

func mustSerialize(t *testing.T, ser serializer.IRPCSerializer, msg *common.Message) []byte {
	t.Helper()
	data, err := ser.Serialize(*msg)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return data
}
