package main

import (
	"context"
	"fmt"
	"os"

	"github.com/effective-security/mcpchat/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
