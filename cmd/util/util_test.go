package util

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetClientConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("transport-endpoints", "localhost:1, ,localhost:2")
	viper.Set("rpc-timeout", 7)
	viper.Set("transport-read-buffer", 2)
	viper.Set("transport-tcp-linger", -1)

	conf := GetClientConfig()
	assert.Equal(t, []string{"localhost:1", "localhost:2"}, conf.Transport.Endpoints)
	assert.Equal(t, 7, conf.TimeoutSecond)
	assert.Equal(t, 2048, conf.Transport.ReadBufferSize)
	assert.Equal(t, -1, conf.Transport.TCPLingerSec)
}

func TestGetSerializerAndTransport(t *testing.T) {
	t.Cleanup(viper.Reset)

	for _, name := range []string{"json", "gob", "binary"} {
		viper.Set("serializer", name)
		s, err := GetSerializer()
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
	viper.Set("serializer", "xml")
	_, err := GetSerializer()
	assert.Error(t, err)

	for _, name := range []string{"http", "tcp", "unix"} {
		viper.Set("transport", name)
		_, err := GetTransport()
		require.NoError(t, err, name)
		_, err = GetServerTransport()
		require.NoError(t, err, name)
	}
	viper.Set("transport", "carrier-pigeon")
	_, err = GetTransport()
	assert.Error(t, err)
}

func TestBenchTimers(t *testing.T) {
	timers := NewBenchTimers()
	for i := 0; i < 10; i++ {
		timers.Time("op", func() error {
			time.Sleep(time.Millisecond)
			return nil
		})
	}
	timers.Time("op", func() error { return errors.New("failed") })
	timers.Count("conflicts")

	assert.Equal(t, []string{"conflicts", "op", "op-errors"}, timers.names())

	path := filepath.Join(t.TempDir(), "bench.csv")
	require.NoError(t, timers.WriteCSV(path, map[string]string{"Threads": "4"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2, "header and one timer")
	assert.Equal(t, "Threads", rows[0][len(rows[0])-1])
	assert.Equal(t, "op", rows[1][0])
	assert.Equal(t, "10", rows[1][1])
	assert.Equal(t, "4", rows[1][len(rows[1])-1])
}
