package streamid

import "strings"

// BlankLocation stands in for an empty location code where empty tokens are
// not allowed, such as NATS subjects.
const BlankLocation = "--"

// SubjectTokens returns the four codes with an empty location written as BlankLocation.
func (s StreamID) SubjectTokens() []string {
	location := s.location
	if location == "" {
		location = BlankLocation
	}
	return []string{s.network, s.station, location, s.channel}
}

// Subject joins SubjectTokens with dots.
func (s StreamID) Subject() string {
	return strings.Join(s.SubjectTokens(), ".")
}

// FromSubjectTokens reverses SubjectTokens. The tokens must form a complete
// identifier under the strict grammar.
func FromSubjectTokens(tokens []string) (StreamID, error) {
	if len(tokens) != 4 {
		return StreamID{}, &FormatError{Raw: strings.Join(tokens, ".")}
	}
	location := tokens[2]
	if location == BlankLocation {
		location = ""
	}
	return ParseStrict(tokens[0] + "." + tokens[1] + "." + location + "." + tokens[3])
}
