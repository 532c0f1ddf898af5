package main

import (
	"os"

	"github.com/odit-bit/tambal/cmd"
	"github.com/spf13/cobra"
)

func main() {
	rootCMD := cobra.Command{
		Use:   "tambal",
		Short: "self-learning error fix assistant",
	}
	rootCMD.AddCommand(
		&cmd.ServerCMD,
		&cmd.ChatCMD,
	)
	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
