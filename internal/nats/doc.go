// Package nats provides the embedded NATS broker, waveform ingest and result
// publishing.
//
// # Architecture
//
//   - Server: Embedded NATS server running in the main process (seisnode serve)
//   - Bridge: Subscribes to waveform subjects and hands packets to the stream service
//   - Publisher: Publishes RSAM results and, for seisnode simulate, waveform packets
//
// # Subject Hierarchy
//
//	seisnode.waveform.{net}.{sta}.{loc}.{cha}   # Waveform packets (digitiser → server)
//	seisnode.rsam.{net}.{sta}.{loc}.{cha}       # RSAM/SSAM results (server → consumers)
//
// An empty location code is written as "--" because NATS subjects cannot
// contain empty tokens, so VG.TMKS..EHZ becomes seisnode.waveform.VG.TMKS.--.EHZ.
//
// The package uses fire-and-forget messaging (core NATS, no JetStream).
// Publishers gracefully degrade when NATS is unavailable.
//
// # Useful Debug Commands
//
// Monitor every RSAM result:
//
//	nats sub "seisnode.rsam.>"
//
// Monitor one station's packets:
//
//	nats sub "seisnode.waveform.IU.ANMO.>"
//
// Inject a packet by hand:
//
//	nats pub "seisnode.waveform.IU.ANMO.00.BHZ" \
//	  '{"starttime":"2024-03-01T12:00:00Z","sampling_rate":20,"data":[1,2,3]}'
//
// # Message Formats
//
// Waveform packets ({"stream"} is optional and must match the subject):
//
//	{
//	  "stream": "IU.ANMO.00.BHZ",
//	  "starttime": "2024-03-01T12:00:00Z",
//	  "sampling_rate": 20,
//	  "data": [12.5, -3.1, 7.0]
//	}
//
// RSAM results:
//
//	{
//	  "stream": "IU.ANMO.00.BHZ",
//	  "window_start": "2024-03-01T12:00:00Z",
//	  "window": 600000000000,
//	  "sampling_rate": 20,
//	  "rsam": 153.2,
//	  "ssam": [{"low": 0.5, "high": 1, "amplitude": 12.1}],
//	  "samples": 12000
//	}
package nats
