// Package serializer turns common.Message values into bytes and back for the store RPC.
//
// Three formats implement IRPCSerializer and can be chosen with the --serializer flag:
//
//   - binary (NewBinarySerializer): a flag byte marks which message fields follow, so
//     an empty field costs nothing. Fastest and smallest, the default.
//   - json (NewJSONSerializer): readable on the wire, handy when debugging a store server
//     with curl.
//   - gob (NewGOBSerializer): kept for comparison in the benchmarks. Larger and slower than
//     both of the above.
//
// Client and server must use the same format. Serializers hold no state and may be shared
// between goroutines.
//
//	ser := serializer.NewBinarySerializer()
//	data, err := ser.Serialize(msg)
//	var out common.Message
//	err = ser.Deserialize(data, &out)
package serializer
