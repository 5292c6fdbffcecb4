// Command storefrontctl is an operator tool for the storefront key material
// and tokens. It reads the same configuration as the server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
