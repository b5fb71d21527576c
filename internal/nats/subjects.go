package nats

import (
	"fmt"
	"strings"

	"github.com/smazurov/seisnode/internal/streamid"
)

// Subject prefixes for NATS topics.
const (
	SubjectWaveformPrefix = "seisnode.waveform"
	SubjectRSAMPrefix     = "seisnode.rsam"
)

// SubjectWaveform returns the subject a stream's packets are published on.
func SubjectWaveform(id streamid.StreamID) string {
	return SubjectWaveformPrefix + "." + id.Subject()
}

// SubjectRSAM returns the subject a stream's results are published on.
func SubjectRSAM(id streamid.StreamID) string {
	return SubjectRSAMPrefix + "." + id.Subject()
}

// StreamFromSubject extracts the stream identifier following prefix.
func StreamFromSubject(prefix, subject string) (streamid.StreamID, error) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return streamid.StreamID{}, fmt.Errorf("subject %q is not under %s", subject, prefix)
	}
	return streamid.FromSubjectTokens(strings.Split(rest, "."))
}
