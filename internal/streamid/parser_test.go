package streamid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected StreamID
	}{
		{
			name:     "full identifier",
			input:    "IU.ANMO.00.BHZ",
			expected: New("IU", "ANMO", "00", "BHZ"),
		},
		{
			name:     "blank location",
			input:    "IU.ANMO..BHZ",
			expected: New("IU", "ANMO", "", "BHZ"),
		},
		{
			name:     "underscores and digits are word characters",
			input:    "V_1.ST2.10.H_Z",
			expected: New("V_1", "ST2", "10", "H_Z"),
		},
		{
			name:     "trailing content is ignored",
			input:    "IU.ANMO.00.BHZ.extra",
			expected: New("IU", "ANMO", "00", "BHZ"),
		},
		{
			name:     "non ascii station",
			input:    "IU.ÅNMO.00.BHZ",
			expected: New("IU", "ÅNMO", "00", "BHZ"),
		},
		{
			name:     "accented station",
			input:    "VG.MÉRAPI.00.HHZ",
			expected: New("VG", "MÉRAPI", "00", "HHZ"),
		},
		{
			name:     "unicode digit location",
			input:    "IU.ANMO.٠٠.BHZ",
			expected: New("IU", "ANMO", "٠٠", "BHZ"),
		},
		{
			name:     "trailing punctuation after channel",
			input:    "VG.MEPAS.00.HHZ-raw",
			expected: New("VG", "MEPAS", "00", "HHZ"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "three parts", input: "IU.ANMO.BHZ"},
		{name: "not an identifier", input: "not-a-valid-id"},
		{name: "alphabetic location", input: "IU.ANMO.XX.BHZ"},
		{name: "empty network", input: ".ANMO.00.BHZ"},
		{name: "empty channel", input: "IU.ANMO.00."},
		{name: "leading space", input: " IU.ANMO.00.BHZ"},
		{name: "non digit unicode location", input: "IU.ANMO.ⅫⅫ.BHZ"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat))

			var formatErr *FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, tc.input, formatErr.Raw)
			assert.Contains(t, err.Error(), tc.input)
		})
	}
}

func TestParse_ErrorMessage(t *testing.T) {
	_, err := Parse("not-a-valid-id")
	require.Error(t, err)
	assert.Equal(t, "Stream identifier not-a-valid-id is not valid.", err.Error())
}

func TestParseStrict(t *testing.T) {
	got, err := ParseStrict("IU.ANMO..BHZ")
	require.NoError(t, err)
	assert.Equal(t, New("IU", "ANMO", "", "BHZ"), got)

	_, err = ParseStrict("IU.ANMO.00.BHZ.extra")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	got, err = ParseStrict("VG.MÉRAPI.٠١.HHZ")
	require.NoError(t, err)
	assert.Equal(t, New("VG", "MÉRAPI", "٠١", "HHZ"), got)
}

func TestParser(t *testing.T) {
	lenient := Parser(false)
	strict := Parser(true)

	_, err := lenient("IU.ANMO.00.BHZ.extra")
	assert.NoError(t, err)
	_, err = strict("IU.ANMO.00.BHZ.extra")
	assert.Error(t, err)
}

func TestFields(t *testing.T) {
	network, station, location, channel, err := Fields("IU.ANMO.00.BHZ")
	require.NoError(t, err)
	assert.Equal(t, "IU", network)
	assert.Equal(t, "ANMO", station)
	assert.Equal(t, "00", location)
	assert.Equal(t, "BHZ", channel)

	_, _, _, _, err = Fields("IU.ANMO")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestMustParse(t *testing.T) {
	assert.NotPanics(t, func() { MustParse("IU.ANMO.00.BHZ") })
	assert.Panics(t, func() { MustParse("bogus") })
}
