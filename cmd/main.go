package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quka-ai/kbcore/cmd/service"
)

func main() {
	root := &cobra.Command{
		Use:   "kbcore",
		Short: "knowledge ingestion and retrieval",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("empty command")
		},
	}

	root.AddCommand(
		service.NewCommand(),
		service.NewProcessCommand(),
		service.NewIngestCommand(),
		service.NewSearchCommand(),
		service.NewCheckCommand(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
