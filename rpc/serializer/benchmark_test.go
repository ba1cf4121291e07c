package serializer

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/rpc/common"
)

// benchTraffic adds payload sizes beyond a single lock record to the store traffic
func benchTraffic() map[string]common.Message {
	msgs := storeTraffic()

	docs := make([]db.Document, 0, 200)
	for i := 0; i < 200; i++ {
		docs = append(docs, db.Document{
			Key:     fmt.Sprintf("lock/pages/page-%03d", i),
			Value:   bytes.Repeat([]byte("x"), 256),
			Version: uint64(i + 1),
		})
	}
	msgs["scan 200 locks"] = common.Message{MsgType: common.MsgTScan, Ok: true, Meta: common.EncodeDocuments(docs)}
	msgs["put 16KB"] = *common.NewPutRequest("blob", make([]byte, 16<<10))
	return msgs
}

func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchTraffic() {
			b.Run(name+"/"+msgName, func(b *testing.B) {
				ser := factory()
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := ser.Serialize(msg); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchTraffic() {
			ser := factory()
			data, err := ser.Serialize(msg)
			if err != nil {
				b.Fatalf("%s/%s: %v", name, msgName, err)
			}

			b.Run(name+"/"+msgName, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					var out common.Message
					if err := ser.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkSize reports the encoded size, the loop itself does nothing
func BenchmarkSize(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchTraffic() {
			b.Run(name+"/"+msgName, func(b *testing.B) {
				data, err := factory().Serialize(msg)
				if err != nil {
					b.Fatal(err)
				}
				b.ReportMetric(float64(len(data)), "bytes")
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
