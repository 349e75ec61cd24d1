// Package client is the client half of the wire protocol.
//
// A Client mirrors one server device. Objects it creates get handles from a
// per-type ObjectAllocator and are named by those handles in every command.
// Asynchronous results (buffer mappings, fence completions, builder
// results) come back as server commands, and HandleCommands runs their
// callbacks:
//
//	c := client.New(wire.NewBufferedSerializer(conn))
//	buf := c.CreateBuffer(wgcore.BufferDescriptor{Size: 64, Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst})
//	buf.MapReadAsync(0, 64, func(status wgcore.BufferMapAsyncStatus, data []byte) { ... })
//	_ = c.Flush()
//
//	for {
//		payload, err := wire.ReadFrame(conn)
//		if err != nil {
//			break
//		}
//		if err := c.HandleCommands(payload); err != nil {
//			break
//		}
//	}
//
// Replies for objects that were released, or for map requests that Unmap or
// Destroy already answered, are stale and dropped.
package client
