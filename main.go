package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Robpol86/robutils/common"
	"github.com/Robpol86/robutils/config"
	"github.com/Robpol86/robutils/execmd"
	"github.com/Robpol86/robutils/logger"
	"github.com/Robpol86/robutils/message"
	"github.com/Robpol86/robutils/timefmt"
)

var (
	flagLogLevel string
	flagLogDir   string
	flagVerbose  bool

	flagTimeout time.Duration
	flagCwd     string
	flagShell   bool

	flagHost      string
	flagUser      string
	flagKeyPath   string
	flagPort      int
	flagInventory string
)

func main() {
	msg := message.New()
	msg.Retcodes[2] = "Command could not be started."
	msg.Retcodes[3] = "Remote connection failed."

	root := &cobra.Command{
		Use:           common.AppName,
		Short:         "Run external commands locally or over SSH with timeouts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(flagLogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", flagLogLevel, err)
			}
			return logger.InitGlobalLogger(flagLogDir, flagVerbose, level)
		},
	}
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for rotated log files (console only when unset)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run [flags] -- CMD [ARGS...]",
		Short: "Run a command on the local machine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(msg, args)
		},
	}
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "kill the command after this long (0 = no timeout)")
	runCmd.Flags().StringVar(&flagCwd, "cwd", "", "working directory for the command")
	runCmd.Flags().BoolVar(&flagShell, "shell", false, "treat the arguments as one shell command line")

	sshCmd := &cobra.Command{
		Use:   "ssh [flags] -- COMMAND",
		Short: "Run a command on a remote host over SSH",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(msg, args)
		},
	}
	sshCmd.Flags().StringVar(&flagHost, "host", "", "target host address or inventory alias (required)")
	sshCmd.Flags().StringVar(&flagUser, "user", "", "SSH username (default: current user)")
	sshCmd.Flags().StringVar(&flagKeyPath, "key", "", "path to the SSH private key")
	sshCmd.Flags().IntVar(&flagPort, "port", 0, "SSH port (default 22)")
	sshCmd.Flags().StringVar(&flagInventory, "inventory", "", "YAML host inventory with connection defaults")
	sshCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "close the session after this long (0 = no timeout)")
	_ = sshCmd.MarkFlagRequired("host")

	root.AddCommand(runCmd, sshCmd)

	err := root.Execute()

	// Every in-flight monitor gets its bounded window to finish, then any
	// child processes still alive are killed and reaped.
	execmd.Default().Shutdown()

	if err != nil {
		msg.PrintErr("[red]" + err.Error() + "[/all]")
		os.Exit(1)
	}
}

func runLocal(msg *message.Message, args []string) error {
	var job *execmd.Job
	if flagShell {
		line := args[0]
		for _, a := range args[1:] {
			line += " " + a
		}
		job = execmd.NewShellJob(line, flagTimeout)
	} else {
		job = execmd.NewJob(args, flagTimeout)
	}

	if err := job.RunLocal(flagCwd); err != nil {
		logger.Log.Error(err.Error())
		msg.Quit(2)
	}
	job.Wait()
	return report(msg, job)
}

func runRemote(msg *message.Message, args []string) error {
	line := args[0]
	for _, a := range args[1:] {
		line += " " + a
	}
	job := execmd.NewShellJob(line, flagTimeout)

	host := config.HostSpec{Name: flagHost, Address: flagHost, Port: flagPort, User: flagUser, PrivateKeyPath: flagKeyPath}
	if flagInventory != "" {
		inv, err := config.NewLoader(flagInventory).Load()
		if err != nil {
			return err
		}
		host = inv.Lookup(flagHost)
		if flagUser != "" {
			host.User = flagUser
		}
		if flagKeyPath != "" {
			host.PrivateKeyPath = flagKeyPath
		}
		if flagPort != 0 {
			host.Port = flagPort
		}
	}

	opts := []execmd.RemoteOption{}
	if host.User != "" {
		opts = append(opts, execmd.WithUser(host.User))
	}
	if host.PrivateKeyPath != "" {
		opts = append(opts, execmd.WithKeyPath(host.PrivateKeyPath))
	}
	if host.Port != 0 {
		opts = append(opts, execmd.WithPort(host.Port))
	}
	if host.ConnectTimeoutSec != 0 {
		opts = append(opts, execmd.WithConnectTimeout(host.ConnectTimeout()))
	}

	if err := job.RunRemote(host.Address, opts...); err != nil {
		return err
	}
	if job.State() == execmd.StateConnectionFailed {
		msg.PrintErr(fmt.Sprintf("[red]%s: %v[/all]", host.Address, job.ConnectionError()))
		msg.Quit(3)
	}
	job.Wait()
	return report(msg, job)
}

func report(msg *message.Message, job *execmd.Job) error {
	if out := job.Stdout(); out != "" {
		fmt.Print(out)
	}
	if errOut := job.Stderr(); errOut != "" {
		fmt.Fprint(os.Stderr, errOut)
	}
	code, _ := job.ExitCode()
	if job.State() == execmd.StateTimedOut {
		msg.PrintErr(fmt.Sprintf("[yellow]command timed out after %s (exit %d)[/all]", timefmt.ShortDur(job.Timeout()), code))
	}
	if code != 0 {
		execmd.Default().Shutdown()
		if code < 0 {
			code = 1
		}
		os.Exit(code)
	}
	return nil
}
