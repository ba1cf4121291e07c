package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/http"
	"github.com/ValentinKolb/dLock/rpc/transport/tcp"
	"github.com/ValentinKolb/dLock/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds DLOCK_* environment variables to viper
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("dlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// RPC client (store access)
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the flags needed to reach a store served by "dlock serve"
func SetupRPCClientFlags(cmd *cobra.Command, defaultShard int) {
	key := "shard"
	cmd.PersistentFlags().Int(key, defaultShard, WrapString("ID of the store shard to use"))

	key = "rpc-timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of one store request"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:9090", WrapString("The address of the dlock store server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time for the transport (in seconds, only for tcp, negative for the OS default)"))
}

// GetClientConfig reads the rpc client configuration from viper
func GetClientConfig() *common.ClientConfig {
	endpoints := make([]string, 0)
	for _, endpoint := range strings.Split(viper.GetString("transport-endpoints"), ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
	}

	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("rpc-timeout"),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              endpoints,
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}
}

var serializers = map[string]func() serializer.IRPCSerializer{
	"binary": serializer.NewBinarySerializer,
	"json":   serializer.NewJSONSerializer,
	"gob":    serializer.NewGOBSerializer,
}

// transports holds both ends of every transport selectable with --transport
var transports = map[string]struct {
	client func() transport.IRPCClientTransport
	server func() transport.IRPCServerTransport
}{
	"http": {http.NewHttpClientTransport, http.NewHttpServerTransport},
	"tcp":  {tcp.NewTCPClientTransport, tcp.NewTCPDefaultServerTransport},
	"unix": {unix.NewUnixClientTransport, unix.NewUnixDefaultServerTransport},
}

// GetSerializer creates the serializer selected with --serializer
func GetSerializer() (serializer.IRPCSerializer, error) {
	name := viper.GetString("serializer")
	newSerializer, ok := serializers[name]
	if !ok {
		return nil, fmt.Errorf("invalid serializer %q (must be one of binary, json, gob)", name)
	}
	return newSerializer(), nil
}

// GetTransport creates the client side of the transport selected with --transport
func GetTransport() (transport.IRPCClientTransport, error) {
	name := viper.GetString("transport")
	t, ok := transports[name]
	if !ok {
		return nil, fmt.Errorf("invalid transport %q (must be one of http, tcp, unix)", name)
	}
	return t.client(), nil
}

// GetServerTransport creates the server side of the transport selected with --transport
func GetServerTransport() (transport.IRPCServerTransport, error) {
	name := viper.GetString("transport")
	t, ok := transports[name]
	if !ok {
		return nil, fmt.Errorf("invalid transport %q (must be one of http, tcp, unix)", name)
	}
	return t.server(), nil
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}
