// Package cli implements the ckms-admin command tree. Every subcommand
// drives the already-wired application.CryptoFacade set by Bootstrap; there
// is no HTTP or gRPC surface behind it.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/ckms/internal/application"
	"github.com/turtacn/ckms/pkg/logger"
)

var (
	facade *application.CryptoFacade
	log    logger.Logger
)

// rootCmd is the entry point for the `ckms-admin` binary when invoked
// without any subcommand.
var rootCmd = &cobra.Command{
	Use:   "ckms-admin",
	Short: "Administer tenant-scoped keys for the key management service.",
	Long: `ckms-admin drives the key management service's core operations --
public key retrieval, encrypt, decrypt, sign and verify -- against an
already-minted or freshly-minted key scope.`,
}

// Bootstrap wires the CLI to a live CryptoFacade and logger before Execute
// is called.
func Bootstrap(f *application.CryptoFacade, l logger.Logger) {
	facade = f
	log = l
}

// Execute runs the CLI, parsing os.Args and dispatching to the matching
// subcommand.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
