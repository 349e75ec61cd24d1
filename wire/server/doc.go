// Package server is the server half of the wire protocol. It executes the
// commands of one client connection on a wgcore.Device and serializes the
// results back.
//
// The server keeps one table per object type, indexed by the ids the client
// chose. Objects whose creation failed stay in the table as error objects,
// so later commands naming them are accepted and dropped while the failure
// itself is reported once as a device error.
//
// Asynchronous work (buffer mappings, fence signals) is requested in
// spontaneous mode, so replies are produced while the device ticks. Tick
// drives those ticks and flushes the replies:
//
//	srv := server.New(inst, dev, wire.NewBufferedSerializer(conn))
//	defer srv.Close()
//	for {
//		payload, err := wire.ReadFrame(conn)
//		if err != nil {
//			return err
//		}
//		if err := srv.HandleCommands(payload); err != nil {
//			return err
//		}
//		if err := srv.Tick(); err != nil {
//			return err
//		}
//	}
package server
