package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/smazurov/seisnode/internal/streamid"
)

// parsedID is one line of `parse --json` output.
type parsedID struct {
	Input    string `json:"input"`
	Valid    bool   `json:"valid"`
	ID       string `json:"id,omitempty"`
	Network  string `json:"network,omitempty"`
	Station  string `json:"station,omitempty"`
	Location string `json:"location,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CreateParseCmd creates the parse command.
func CreateParseCmd() *cobra.Command {
	var strict bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse <stream-id>...",
		Short: "Validate stream identifiers",
		Long: `Parses each argument as a network.station.location.channel stream identifier ` +
			`and prints its fields, or the validation error. Exits 1 if any identifier is invalid.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			results := parseAll(args, streamid.Parser(strict))

			var err error
			if asJSON {
				err = writeParsedJSON(cmd.OutOrStdout(), results)
			} else {
				err = writeParsedText(cmd.OutOrStdout(), cmd.ErrOrStderr(), results)
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(2)
			}

			for _, r := range results {
				if !r.Valid {
					os.Exit(1)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Reject identifiers with trailing input")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

func parseAll(inputs []string, parse func(string) (streamid.StreamID, error)) []parsedID {
	results := make([]parsedID, 0, len(inputs))
	for _, input := range inputs {
		id, err := parse(input)
		if err != nil {
			results = append(results, parsedID{Input: input, Error: err.Error()})
			continue
		}
		results = append(results, parsedID{
			Input:    input,
			Valid:    true,
			ID:       id.String(),
			Network:  id.Network(),
			Station:  id.Station(),
			Location: id.Location(),
			Channel:  id.Channel(),
		})
	}
	return results
}

func writeParsedText(out, errOut io.Writer, results []parsedID) error {
	for _, r := range results {
		if !r.Valid {
			if _, err := fmt.Fprintln(errOut, r.Error); err != nil {
				return err
			}
			continue
		}
		_, err := fmt.Fprintf(out, "%s\tnetwork=%s station=%s location=%s channel=%s\n",
			r.ID, r.Network, r.Station, r.Location, r.Channel)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeParsedJSON(out io.Writer, results []parsedID) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
