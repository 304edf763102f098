package main

import (
	"context"
	"fmt"
	"os"

	"github.com/link2pay/link2pay/apps/api/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "link2pay:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
