package common

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

func TestDocumentCodec(t *testing.T) {
	docs := []db.Document{
		{Key: "lock/a/1", Value: []byte(`{"x":1}`), Version: 7},
		{Key: "lock/a/2", Value: nil, Version: 1 << 40},
	}

	decoded, err := DecodeDocuments(EncodeDocuments(docs))
	if err != nil {
		t.Fatalf("DecodeDocuments: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d documents, want 2", len(decoded))
	}
	if decoded[0].Key != "lock/a/1" || string(decoded[0].Value) != `{"x":1}` || decoded[0].Version != 7 {
		t.Errorf("first document = %+v", decoded[0])
	}
	if decoded[1].Version != 1<<40 || len(decoded[1].Value) != 0 {
		t.Errorf("second document = %+v", decoded[1])
	}

	// an empty list
	if decoded, err = DecodeDocuments(EncodeDocuments(nil)); err != nil || len(decoded) != 0 {
		t.Errorf("empty list = (%v, %v)", decoded, err)
	}

	// truncated input must not panic
	enc := EncodeDocuments(docs)
	for i := 1; i < len(enc); i++ {
		if _, err := DecodeDocuments(enc[:i]); err == nil {
			t.Errorf("truncated input of length %d decoded without error", i)
		}
	}
}

func TestResponseErrorKeepsCode(t *testing.T) {
	ok := NewResponse(MsgTPutIf, nil)
	if err := ok.ResponseError(); err != nil {
		t.Errorf("successful response returned %v", err)
	}

	failed := NewResponse(MsgTPutIf, store.NewConditionFailedError("k", 1, 2))
	err := failed.ResponseError()
	if !store.IsConditionFailed(err) {
		t.Errorf("expected ConditionFailed, got %v", err)
	}

	if code := store.CodeOf(NewErrorResponse("boom").ResponseError()); code != store.RetCInternalError {
		t.Errorf("error response code = %s, want InternalError", code)
	}
}

func TestMessageTypeJSON(t *testing.T) {
	for mt := range messageTypeNames {
		data, err := json.Marshal(mt)
		if err != nil {
			t.Fatalf("Marshal(%s): %v", mt, err)
		}
		var back MessageType
		if err := json.Unmarshal(data, &back); err != nil || back != mt {
			t.Errorf("round trip of %s = (%s, %v)", mt, back, err)
		}
	}

	var mt MessageType
	if err := json.Unmarshal([]byte(`"acquire"`), &mt); err == nil {
		t.Errorf("unknown message type must fail")
	}
}
