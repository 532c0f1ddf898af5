package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odit-bit/tambal/api"
	"github.com/spf13/cobra"
)

func init() {
	ChatCMD.Flags().StringVar(&GlobEndpoint, "addr", "http://localhost:11823", "tambal server address")
	ChatCMD.Flags().Int64Var(&GlobUserID, "user", 1, "user id of this chat session")
}

var (
	GlobEndpoint = ""
	GlobUserID   int64
)

var ChatCMD = cobra.Command{
	Use:   "chat",
	Short: "send error logs line by line, rate answers with /good or /bad",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat(cmd.Context(), os.Stdin, os.Stdout, api.NewClient(GlobEndpoint), GlobUserID)
	},
}

const maxLineBytes = 1 << 20

func chat(ctx context.Context, in io.Reader, out io.Writer, c *api.Client, userID int64) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(ScanLines)

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			return nil
		case "/good", "/bad":
			res, err := c.Rate(ctx, api.RateRequest{UserID: userID, Rating: strings.TrimPrefix(input, "/")})
			if err != nil {
				fmt.Fprintf(out, ">error: %s \n", err)
				continue
			}
			if !res.Applied {
				fmt.Fprintf(out, ">nothing to rate \n")
				continue
			}
			fmt.Fprintf(out, ">rated \n")
			continue
		case "/stats":
			st, err := c.Stats(ctx)
			if err != nil {
				fmt.Fprintf(out, ">error: %s \n", err)
				continue
			}
			fmt.Fprintf(out, ">solutions: %d (reliable %d), ratings: +%d/-%d, queries: %d, users: %d \n",
				st.TotalSolutions, st.ReliableSolutions, st.PositiveRatings, st.NegativeRatings, st.TotalQueries, st.DistinctUsers)
			continue
		}

		res, err := c.Fix(ctx, api.FixRequest{Code: input, UserID: userID})
		if err != nil {
			fmt.Fprintf(out, ">error: %s \n", err)
			continue
		}
		fmt.Fprintf(out, ">%s [%s] %s: \n%s\n\n", res.Model, res.Source, res.Filename, res.FixedCode)
	}
	return scanner.Err()
}

func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		// We have a full newline-terminated line.
		return i + 1, dropCR(data[0:i]), nil
	}
	// If we're at EOF, we have a final, non-terminated line. Return it.
	if atEOF {
		return len(data), dropCR(data), nil
	}
	// Request more data.
	return 0, nil, nil
}

// dropCR drops a terminal \r from the data.
func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[0 : len(data)-1]
	}
	return data
}
