package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
)

// Exit codes
const (
	exitSuccess = 0
	exitError   = 1
	exitFailed  = 2 // the job ended failed
)

var (
	daemonAddr string
	logLevel   string
	jsonOutput bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "optctl",
		Short:         "Drive vessel design optimization jobs",
		Long:          "optctl runs optimization jobs in-process or against an optd daemon over gRPC.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetDefault(logger.NewConsole(logLevel, os.Stderr, !isTerminal(os.Stderr)))
		},
	}
	root.PersistentFlags().StringVar(&daemonAddr, "addr", "localhost:50051", "optd gRPC address")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newSubmitCmd(),
		newWatchCmd(),
		newCancelCmd(),
		newResultsCmd(),
		newListCmd(),
		newReliabilityCmd(),
	)
	return root
}

func main() {
	os.Exit(exitStatus(os.Stderr, newRootCmd().Execute()))
}

// exitStatus maps the command's error to a process exit code, printing the
// error unless it only carries a code
func exitStatus(w io.Writer, err error) int {
	if err == nil {
		return exitSuccess
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return exitError
}

// exitCode ends the process with a specific code without an extra message
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
