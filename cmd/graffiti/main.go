// Command graffiti is the federated object store client and reference pod.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/graffiti-garden/implementation-federated/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
