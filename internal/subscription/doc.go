// Package subscription implements the WebSocket channel-subscription protocol.
//
// Clients send JSON frames naming stream identifiers:
//
//	{"type":"subscribe","data":{"streams":["IU.ANMO.00.BHZ","VG.TMKS..EHZ"]}}
//	{"type":"unsubscribe","data":{"streams":["VG.TMKS..EHZ"]}}
//	{"type":"ping"}
//
// The server answers with "subscribed" or "unsubscribed" frames listing the
// accepted identifiers and every rejected entry with its reason, then pushes
// "rsam" and "waveform" frames for the subscribed streams only. Each
// identifier in a request is validated on its own so one malformed entry does
// not reject the others.
package subscription
