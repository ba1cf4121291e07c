package serializer

import "github.com/ValentinKolb/dLock/rpc/common"

// IRPCSerializer converts messages to and from their wire form.
// Implementations are stateless and safe for concurrent use.
type IRPCSerializer interface {
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize overwrites *msg with the decoded message
	Deserialize(b []byte, msg *common.Message) error
}
