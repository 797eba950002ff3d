// Command admin runs operator tasks against a gophaudio deployment: manual
// retention sweeps, a full purge and user management.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
