// Package wire defines the command stream shared by wire/client and
// wire/server.
//
// A connection carries frames in both directions. Each frame is a
// little-endian uint32 payload size followed by the payload, and a payload is
// a sequence of commands. Every command starts with a uint32 command id and
// the uint32 size of the whole command, header included.
//
// Objects created through the wire are named by an ObjectHandle chosen by the
// client. The handle's serial distinguishes a reused id from the object that
// held it before, so replies for a freed object are recognized as stale and
// dropped.
//
// Serializers batch commands until Flush:
//
//	ser := wire.NewBufferedSerializer(conn)
//	ser.SerializeCommand(&wire.BufferUnmap{Buffer: id})
//	if err := ser.Flush(); err != nil {
//		return err
//	}
//
// The receiving side reads a frame with ReadFrame and walks it with
// DecodeCommands. Both sides stop at the first error wrapping ErrProtocol.
package wire
