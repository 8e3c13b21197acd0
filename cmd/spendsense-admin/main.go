// Command spendsense-admin manages SpendSense accounts directly against the
// configured database. It reads the same environment as the server.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
