package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:            CommandTPutIf,
				Key:             "testkey",
				ExpectedVersion: 100,
				Value:           []byte("testvalue"),
			},
			expected: 1 + 8 + 4 + 7 + 9, // Type + ExpectedVersion + KeyLen + Key + Value
		},
		{
			name: "Command with empty key and value",
			command: Command{
				Type:  CommandTPut,
				Key:   "",
				Value: []byte("testvalue"),
			},
			expected: 1 + 8 + 4 + 0 + 9,
		},
		{
			name: "Command without value",
			command: Command{
				Type: CommandTDelete,
				Key:  "k",
			},
			expected: 1 + 8 + 4 + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if size := len(tt.command.Serialize()); size != tt.expected {
				t.Errorf("len(Serialize()) = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Conditional put",
			command: Command{
				Type:            CommandTPutIf,
				Key:             "lock/magazine_sections/sec-42",
				ExpectedVersion: 17,
				Value:           []byte(`{"ownerUserId":"a"}`),
			},
		},
		{
			name: "Conditional delete without value",
			command: Command{
				Type:            CommandTDeleteIf,
				Key:             "lock/magazine_sections/sec-42",
				ExpectedVersion: 18,
			},
		},
		{
			name: "Put with empty key",
			command: Command{
				Type:  CommandTPut,
				Key:   "",
				Value: []byte("v"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if got.Key != tt.command.Key {
				t.Errorf("Key = %q, want %q", got.Key, tt.command.Key)
			}
			if got.ExpectedVersion != tt.command.ExpectedVersion {
				t.Errorf("ExpectedVersion = %v, want %v", got.ExpectedVersion, tt.command.ExpectedVersion)
			}
			if !bytes.Equal(got.Value, tt.command.Value) {
				t.Errorf("Value = %v, want %v", got.Value, tt.command.Value)
			}
		})
	}
}

// TestDeserializeErrors tests that malformed input is rejected
func TestDeserializeErrors(t *testing.T) {
	tooLongKey := make([]byte, headerSize)
	binary.BigEndian.PutUint32(tooLongKey[9:13], 50)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{1, 2, 3}},
		{"key length beyond data", tooLongKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize(%v) expected error", tt.data)
			}
		})
	}
}

func TestCommandTypeToDBFeature(t *testing.T) {
	for _, ct := range []CommandType{CommandTPut, CommandTPutIf, CommandTDelete, CommandTDeleteIf} {
		if _, err := ct.ToDBFeature(); err != nil {
			t.Errorf("%s.ToDBFeature() error = %v", ct, err)
		}
	}
	if _, err := CommandType(200).ToDBFeature(); err == nil {
		t.Errorf("expected error for unknown command type")
	}
}

func TestVersionEncoding(t *testing.T) {
	if got := DecodeVersion(EncodeVersion(123456)); got != 123456 {
		t.Errorf("DecodeVersion(EncodeVersion(123456)) = %d", got)
	}
	if got := DecodeVersion([]byte("message")); got != 0 {
		t.Errorf("DecodeVersion of a message = %d, want 0", got)
	}
}
