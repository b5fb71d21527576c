/*
Package streamid names seismic waveform channels.

A stream identifier is the four-part address network.station.location.channel,
for example IU.ANMO.00.BHZ. The location code may be empty, which yields two
adjacent dots (IU.ANMO..BHZ).

StreamID values are immutable and comparable. Two identifiers built from the
same four codes are equal with == and hash equal, whether they were parsed from
a canonical string or assembled with New, so they can key maps and sets used by
per-stream processing.
*/
package streamid
