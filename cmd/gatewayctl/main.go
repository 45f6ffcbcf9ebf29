// Command gatewayctl is the operator CLI for the WhatsApp booking gateway.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
