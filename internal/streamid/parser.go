package streamid

import "regexp"

// Word codes are Unicode letters, numbers or underscore; the location is
// Unicode decimal digits. RE2's \w and \d are ASCII-only, so the classes are
// spelled out.
const identifierPattern = `^([\p{L}\p{N}_]+)\.([\p{L}\p{N}_]+)\.(\p{Nd}*)\.([\p{L}\p{N}_]+)`

// identifierRegex matches network.station.location.channel at the start of the input.
// Anything after the channel code is ignored.
var identifierRegex = regexp.MustCompile(identifierPattern)

// strictIdentifierRegex is identifierRegex anchored at both ends.
var strictIdentifierRegex = regexp.MustCompile(identifierPattern + `$`)

// Parse builds a StreamID from its canonical string form.
//
// network, station and channel are one or more letters, digits or underscores,
// location is zero or more digits. Only the start of id has to match: trailing content after a
// valid channel code is dropped, so Parse("IU.ANMO.00.BHZ.extra") yields
// IU.ANMO.00.BHZ. Use ParseStrict to reject trailing content.
func Parse(id string) (StreamID, error) {
	return parseWith(identifierRegex, id)
}

// ParseStrict is Parse with a full-string match.
func ParseStrict(id string) (StreamID, error) {
	return parseWith(strictIdentifierRegex, id)
}

// MustParse is like Parse but panics on invalid input.
func MustParse(id string) StreamID {
	s, err := Parse(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields splits a canonical identifier into its four codes without building a StreamID.
func Fields(id string) (network, station, location, channel string, err error) {
	s, err := Parse(id)
	if err != nil {
		return "", "", "", "", err
	}
	return s.network, s.station, s.location, s.channel, nil
}

// Parser returns Parse or ParseStrict.
func Parser(strict bool) func(string) (StreamID, error) {
	if strict {
		return ParseStrict
	}
	return Parse
}

func parseWith(re *regexp.Regexp, id string) (StreamID, error) {
	matches := re.FindStringSubmatch(id)
	if matches == nil {
		return StreamID{}, &FormatError{Raw: id}
	}
	return StreamID{
		network:  matches[1],
		station:  matches[2],
		location: matches[3],
		channel:  matches[4],
	}, nil
}
