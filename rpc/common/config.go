package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/config"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Dragonboat Config
// --------------------------------------------------------------------------

// Election and heartbeat timing in multiples of RTTMillisecond (10:1 as suggested by the raft paper)
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration structs (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds socket options for the stream based transports (tcp, unix)
type SocketConf struct {
	WriteBufferSize int // 0 = OS default
	ReadBufferSize  int // 0 = OS default
}

// TCPConf holds options that only apply to tcp connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 = disabled
	TCPLingerSec    int // < 0 = OS default
}

// ServerTransportConfig configures the listening side of a transport
type ServerTransportConfig struct {
	Endpoint       string // host:port or socket path
	WorkersPerConn int    // concurrent requests per connection (stream transports)
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the connecting side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocalIStore  ServerShardType = "lstore"   // in memory, single node
	ShardTypeRemoteIStore ServerShardType = "dstore"   // raft replicated
	ShardTypeSQLiteIStore ServerShardType = "sqlstore" // sqlite file, single node
)

// ParseShardType parses the shard type names accepted on the command line
func ParseShardType(s string) (ServerShardType, error) {
	switch ServerShardType(strings.ToLower(strings.TrimSpace(s))) {
	case ShardTypeLocalIStore:
		return ShardTypeLocalIStore, nil
	case ShardTypeRemoteIStore:
		return ShardTypeRemoteIStore, nil
	case ShardTypeSQLiteIStore:
		return ShardTypeSQLiteIStore, nil
	default:
		return "", fmt.Errorf("invalid shard type %q (must be one of lstore, dstore, sqlstore)", s)
	}
}

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type is the kind of store backing the shard
	Type ServerShardType
}

// ServerConfig holds all configuration parameters for the RPC server and the RAFT cluster.
type ServerConfig struct {
	// the shards served by this node
	Shards []ServerShard

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// request timeout
	TimeoutSecond int64

	// transport settings
	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// HasRemoteShard checks if the configuration contains any raft shards
func (c *ServerConfig) HasRemoteShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRemoteIStore {
			return true
		}
	}
	return false
}

// SQLitePath returns the database file of a sqlite shard
func (c *ServerConfig) SQLitePath(shardID uint64) string {
	return filepath.Join(c.DataDir, fmt.Sprintf("shard-%d.db", shardID))
}

// String prints the configuration the way "dlock serve" shows it on startup
func (c *ServerConfig) String() string {
	var p ConfigPrinter

	p.Section("RPC Server")
	p.Field("Endpoint", c.Transport.Endpoint)
	p.Field("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	p.Field("Workers Per Conn", c.Transport.WorkersPerConn)
	p.Field("Log Level", c.LogLevel)

	p.Section("Shards")
	for _, shard := range c.Shards {
		desc := string(shard.Type)
		if shard.Type == ShardTypeSQLiteIStore {
			desc += " (" + c.SQLitePath(shard.ShardID) + ")"
		}
		p.Field(strconv.FormatUint(shard.ShardID, 10), desc)
	}

	if !c.HasRemoteShard() {
		return p.String()
	}

	p.Section("RAFT")
	p.Field("Replica ID", c.ReplicaID)
	p.Field("RAFT Address", c.ClusterMembers[c.ReplicaID])
	p.Field("Round Trip Time", fmt.Sprintf("%d ms", c.RTTMillisecond))
	p.Field("Election Timeout", fmt.Sprintf("%d ms", c.RTTMillisecond*electionRTTFactor))
	p.Field("Heartbeat Interval", fmt.Sprintf("%d ms", c.RTTMillisecond*heartbeatRTTFactor))
	p.Field("Snapshot Entries", c.SnapshotEntries)
	p.Field("Compaction Overhead", c.CompactionOverhead)
	p.Field("Data Directory", c.DataDir)

	ids := make([]uint64, 0, len(c.ClusterMembers))
	for id := range c.ClusterMembers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	p.Line("Initial members:")
	for _, id := range ids {
		p.Line("  %d = %s", id, c.ClusterMembers[id])
	}
	return p.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String prints the client side of the RPC connection
func (c *ClientConfig) String() string {
	var p ConfigPrinter

	p.Section("Store Client")
	p.Field("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	p.Field("Retry Count", c.Transport.RetryCount)
	p.Field("Conns Per Endpoint", max(1, c.Transport.ConnectionsPerEndpoint))
	p.Field("Endpoints", strings.Join(c.Transport.Endpoints, ", "))

	return p.String()
}
