// Package worker runs one processing goroutine per seismic stream.
//
// Pool keys tasks by streamid.StreamID. Each task owns a bounded inbox, so
// packets for one stream are handled in arrival order while different streams
// proceed in parallel. A full inbox drops the packet rather than blocking the
// ingest path.
//
//	pool := worker.NewPool(&worker.PoolOptions{
//	    TaskProvider: func(id streamid.StreamID) (worker.Task, error) {
//	        return func(ctx context.Context, id streamid.StreamID, inbox <-chan waveform.Packet) error {
//	            for {
//	                select {
//	                case <-ctx.Done():
//	                    return nil
//	                case pkt := <-inbox:
//	                    handle(pkt)
//	                }
//	            }
//	        }, nil
//	    },
//	    OnStateChange: func(id streamid.StreamID, old, new worker.State, err error) {
//	        log.Printf("%s: %s -> %s", id, old, new)
//	    },
//	})
//	defer pool.StopAll()
package worker
