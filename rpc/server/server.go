package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/dstore"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/ValentinKolb/dLock/lib/store/sqlstore"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var (
	Logger = logger.GetLogger("rpc")
	tracer = otel.Tracer("github.com/ValentinKolb/dLock/rpc/server")
)

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates and the adapter that handles
// requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// RPCServer serves the shards of one node over a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	// resources released by Close
	nodeHost  *dragonboat.NodeHost
	closers   []io.Closer
	closeOnce sync.Once
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//	defer s.Close()
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// AddShard serves st under shardID. An existing shard with the same ID is replaced.
// It may be called while the server is running.
func (s *RPCServer) AddShard(shardID uint64, st store.IStore) {
	s.shards.Store(shardID, serverShard{
		Store:   st,
		Adapter: NewIStoreServerAdapter(),
	})
}

// Serve creates the configured shards and serves requests until ctx is done
func (s *RPCServer) Serve(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())
	return s.transport.Listen(ctx, s.config)
}

// Close stops the raft node host and closes the sqlite shards
func (s *RPCServer) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		for _, c := range s.closers {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handle decodes a request, runs it on its shard and encodes the response
func (s *RPCServer) handle(ctx context.Context, shardId uint64, req []byte) []byte {
	start := time.Now()
	var msg common.Message
	var respMsg *common.Message

	if shard, ok := s.shards.Load(shardId); !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "rpc."+msg.MsgType.String(), trace.WithAttributes(
			attribute.Int64("rpc.shard_id", int64(shardId)),
		))
		respMsg = shard.Adapter.Handle(ctx, &msg, shard.Store)
		span.SetAttributes(attribute.Int64("rpc.code", int64(respMsg.Code)))
		span.End()
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_rpc_requests_total{type=%q,code="%d"}`, msg.MsgType, respMsg.Code)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dlock_rpc_request_duration_seconds{type=%q}`, msg.MsgType)).UpdateDuration(start)

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

func (s *RPCServer) init() error {
	if err := common.ValidateLogLevel(s.config.LogLevel); err != nil {
		return err
	}
	common.InitLoggers(s.config.LogLevel)

	// Function to create a new database instance
	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }

	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	// Configure the timeout for the distributed store
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	/*
		Note: A single RPC Server can have any number of shards of any type.
		The following loop creates all the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {
		switch shardConfig.Type {
		case common.ShardTypeLocalIStore:
			s.AddShard(shardConfig.ShardID, lstore.NewLocalStore(dbFactory))
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeSQLiteIStore:
			path := s.config.SQLitePath(shardConfig.ShardID)
			if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
			sqlStore, err := sqlstore.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open sqlite store for shard %d: %w", shardConfig.ShardID, err)
			}
			s.closers = append(s.closers, sqlStore)
			s.AddShard(shardConfig.ShardID, sqlStore)
			Logger.Infof("created sqlite store for shard %d at %s", shardConfig.ShardID, path)

		case common.ShardTypeRemoteIStore:
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			s.AddShard(shardConfig.ShardID, dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout))
			Logger.Infof("started raft replica for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	Logger.Infof("dLock setup completed successfully")

	s.transport.RegisterHandler(s.handle)
	return nil
}
