package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrshanahan/notes-sync/internal/config"
	"github.com/mrshanahan/notes-sync/pkg/client"
	"github.com/mrshanahan/notes-sync/pkg/notes"
)

const requiresSession = "requires-session"

var errNotSignedIn = errors.New("not signed in; run 'notes signin' first")

// cli carries the state shared by every command of one invocation.
type cli struct {
	verbose   bool
	server    string
	configDir string
	getenv    func(string) string

	client *client.Client
	input  *bufio.Reader
}

// cliError is shown to the user as-is; the wrapped error is only logged.
type cliError struct {
	msg string
	err error
}

func (e *cliError) Error() string {
	return e.msg
}

func (e *cliError) Unwrap() error {
	return e.err
}

func fail(msg string, err error) error {
	switch {
	case errors.Is(err, notes.ErrUnauthenticated):
		msg = errNotSignedIn.Error()
	case errors.Is(err, notes.ErrNotFound):
		msg = "note not found"
	case errors.Is(err, notes.ErrInvalidCredentials):
		msg = "invalid email or password"
	case errors.Is(err, notes.ErrPrincipalExists):
		msg = "an account with that email already exists"
	case errors.Is(err, notes.ErrValidation):
		msg = err.Error()
	default:
		slog.Error(msg, "err", err)
		return &cliError{msg: msg, err: err}
	}
	slog.Debug(msg, "err", err)
	return &cliError{msg: msg, err: err}
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	state := &cli{getenv: getenv}

	rootCmd := &cobra.Command{
		Use:   "notes",
		Short: "Personal notes, kept on a notes-api server",
		Long: `notes is a command-line client for notes-api.
Sign in once; the session is kept in the config directory until you sign out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if state.verbose {
				level = slog.LevelDebug
			}
			opts := &slog.HandlerOptions{
				Level: level,
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
			slog.SetDefault(logger)

			return state.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&state.server, "server", "", "notes-api base URL (overrides $"+ServerURLEnvVarKey+" and config.yaml)")
	rootCmd.PersistentFlags().StringVar(&state.configDir, "config-dir", config.NotesConfigDirectory, "Directory holding config.yaml and the session file")

	rootCmd.AddCommand(
		newSignUpCmd(state),
		newSignInCmd(state),
		newSignOutCmd(state),
		newStatusCmd(state),
		newListCmd(state),
		newShowCmd(state),
		newNewCmd(state),
		newEditCmd(state),
		newDeleteCmd(state),
		newConfigCmd(state),
	)
	return rootCmd
}

func (s *cli) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return fail("failed to load .env file", err)
	}
	fileSettings, err := loadSettings(s.configDir)
	if err != nil {
		return fail("failed to load configuration", err)
	}
	serverURL := resolveServer(s.server, s.getenv, fileSettings)
	slog.Debug("using notes server", "url", serverURL)

	s.client = client.NewClient(serverURL,
		client.WithSessionStore(client.NewFileSessionStore(filepath.Join(s.configDir, SessionFileName))))
	s.input = bufio.NewReader(cmd.InOrStdin())

	if cmd.Annotations[requiresSession] == "true" && !s.client.CheckSession(cmd.Context()) {
		return &cliError{msg: errNotSignedIn.Error(), err: notes.ErrUnauthenticated}
	}
	return nil
}

// prompt reads one line of input, echoing the question to out. End of input
// reads as an empty answer.
func (s *cli) prompt(out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := s.input.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptSecret is prompt without echo when stdin is a terminal.
func (s *cli) promptSecret(cmd *cobra.Command, question string) (string, error) {
	out := cmd.OutOrStdout()
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return s.prompt(out, question)
	}
	fmt.Fprint(out, question)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func sessionAnnotation() map[string]string {
	return map[string]string{requiresSession: "true"}
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	rootCmd := newRootCmd(os.Getenv)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
