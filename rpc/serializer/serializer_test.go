package serializer

import (
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// storeTraffic is what a lock api instance and a store server exchange
func storeTraffic() map[string]common.Message {
	record := []byte(`{"collection":"magazine_sections","resourceKey":"sec-42","ownerUserId":"u-1","ownerTabId":"tab-1"}`)
	scanned := common.EncodeDocuments([]db.Document{
		{Key: "lock/magazine_sections/sec-41", Value: record, Version: 7},
		{Key: "lock/magazine_sections/sec-42", Value: record, Version: 9},
	})

	return map[string]common.Message{
		"success":        {MsgType: common.MsgTSuccess},
		"get request":    *common.NewGetRequest("lock/magazine_sections/sec-42"),
		"create request": *common.NewPutIfRequest("lock/magazine_sections/sec-42", record, db.VersionAbsent),
		"update request": *common.NewPutIfRequest("lock/magazine_sections/sec-42", record, 1<<40),
		"delete request": *common.NewDeleteIfRequest("lock/magazine_sections/sec-42", 12),
		"scan request":   *common.NewScanRequest("lock/magazine_sections/", 100),
		"get response": {
			MsgType: common.MsgTGet,
			Value:   record,
			Version: 18,
			Ok:      true,
		},
		"lost condition": {
			MsgType: common.MsgTPutIf,
			Code:    4,
			Err:     "version mismatch",
		},
		"scan response": {
			MsgType: common.MsgTScan,
			Ok:      true,
			Meta:    scanned,
		},
		"error": *common.NewErrorResponse("shard 100 not found"),
	}
}

func TestRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			ser := factory()
			for msgName, msg := range storeTraffic() {
				data, err := ser.Serialize(msg)
				require.NoError(t, err, msgName)

				var got common.Message
				require.NoError(t, ser.Deserialize(data, &got), msgName)
				assert.Equal(t, msg, got, msgName)
			}
		})
	}
}

func TestEveryMessageType(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			ser := factory()
			for msgType := common.MsgTSuccess; msgType <= common.MsgTDBInfo; msgType++ {
				data, err := ser.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, msgType.String())

				var got common.Message
				require.NoError(t, ser.Deserialize(data, &got), msgType.String())
				assert.Equal(t, msgType, got.MsgType)
			}
		})
	}
}

func TestScanResponseKeepsDocuments(t *testing.T) {
	msg := storeTraffic()["scan response"]
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			ser := factory()
			data, err := ser.Serialize(msg)
			require.NoError(t, err)

			var got common.Message
			require.NoError(t, ser.Deserialize(data, &got))
			docs, err := common.DecodeDocuments(got.Meta)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "lock/magazine_sections/sec-41", docs[0].Key)
			assert.Equal(t, uint64(9), docs[1].Version)
		})
	}
}

// An empty value is a legal document body and must not turn into "no value".
func TestBinaryEmptySlices(t *testing.T) {
	ser := NewBinarySerializer()

	cases := map[string]common.Message{
		"zero message": {},
		"empty value":  {MsgType: common.MsgTPut, Key: "lock/a/1", Value: []byte{}},
		"empty meta":   {MsgType: common.MsgTScan, Meta: []byte{}},
		"nil value ok": {MsgType: common.MsgTGet, Ok: true},
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			data, err := ser.Serialize(msg)
			require.NoError(t, err)

			var got common.Message
			require.NoError(t, ser.Deserialize(data, &got))
			assert.Equal(t, msg.MsgType, got.MsgType)
			assert.Equal(t, msg.Key, got.Key)
			assert.Equal(t, msg.Ok, got.Ok)
			assert.Equal(t, msg.Value == nil, got.Value == nil, "value presence")
			assert.Equal(t, msg.Meta == nil, got.Meta == nil, "meta presence")
			assert.Len(t, got.Value, len(msg.Value))
		})
	}
}

func TestBinaryRejectsTruncatedData(t *testing.T) {
	ser := NewBinarySerializer()

	cases := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"empty", []byte{}, true},
		{"type without flags", []byte{1}, true},
		{"header only", []byte{1, 0}, false},
		{"key shorter than its length", []byte{1, hasKey, 0, 0, 0, 5, 'a', 'b', 'c'}, true},
		{"value missing", []byte{1, hasValue, 0, 0, 0, 10}, true},
		{"version cut off", []byte{1, hasVersion, 0, 0, 0}, true},
		{"ok flag", []byte{3, flagOk}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := ser.Deserialize(tc.data, &msg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
