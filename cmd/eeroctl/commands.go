package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lexfrei/go-eero"
	"github.com/lexfrei/go-eero/observability"
)

// newClientFunc builds the client for a command. Tests replace it.
type newClientFunc func(ctx context.Context, cfg *eero.ClientConfig) (*eero.Client, error)

type app struct {
	logger    *logrus.Logger
	newClient newClientFunc
}

func newRootCmd(logger *logrus.Logger) *cobra.Command {
	return newRootCmdWith(logger, eero.NewWithConfig)
}

func newRootCmdWith(logger *logrus.Logger, newClient newClientFunc) *cobra.Command {
	a := &app{logger: logger, newClient: newClient}

	root := &cobra.Command{
		Use:          "eeroctl",
		Short:        "Command line client for the eero cloud service",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file (default eero.yaml in . or the user config dir)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.statusCmd(),
		a.getCmd(),
	)

	return root
}

func (a *app) client(cmd *cobra.Command) (*eero.Client, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get config flag")
	}

	cfg, err := eero.LoadConfig(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		a.logger.SetLevel(level)
	}
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = observability.NewLogrusLogger(a.logger)

	client, err := a.newClient(cmd.Context(), clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}

	return client, nil
}

func (a *app) loginCmd() *cobra.Command {
	var code string
	var resend bool

	cmd := &cobra.Command{
		Use:   "login <email-or-phone>",
		Short: "Log in with a one-time code sent by eero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if client.IsAuthenticated(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "Already logged in. Run 'eeroctl logout' first.")
				return nil
			}

			if err := client.Login(ctx, args[0]); err != nil {
				return errors.Wrap(err, "login failed")
			}

			if resend {
				if err := client.ResendCode(ctx); err != nil {
					return errors.Wrap(err, "failed to resend code")
				}
			}

			if code == "" {
				code, err = promptCode(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}

			if err := client.Verify(ctx, code); err != nil {
				return errors.Wrap(err, "verification failed")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Session stored in %s (%s).\n",
				client.StorageLocation(), client.StorageKind())
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "verification code (prompted when empty)")
	cmd.Flags().BoolVar(&resend, "resend", false, "ask eero to send the code again")

	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}

			if err := client.Logout(cmd.Context()); err != nil {
				return errors.Wrap(err, "logout failed")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}

			authenticated := client.IsAuthenticated(cmd.Context())
			info := client.Session()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "State:    %s\n", info.State)
			fmt.Fprintf(out, "Storage:  %s (%s)\n", client.StorageLocation(), client.StorageKind())
			if !authenticated {
				return nil
			}
			if info.AccountID != "" {
				fmt.Fprintf(out, "Account:  %s\n", info.AccountID)
			}
			if info.PreferredNetworkID != "" {
				fmt.Fprintf(out, "Network:  %s\n", info.PreferredNetworkID)
			}
			if !info.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires:  %s\n", info.ExpiresAt.Format("2006-01-02 15:04"))
			}

			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <path>",
		Short:   "GET a resource and print its data payload",
		Example: "  eeroctl get account\n  eeroctl get networks/12345/devices",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}

			data, err := client.Do(cmd.Context(), http.MethodGet, args[0], nil)
			if err != nil {
				return errors.Wrapf(err, "GET %s failed", args[0])
			}

			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func promptCode(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Verification code: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "failed to read verification code")
	}

	return strings.TrimSpace(line), nil
}

func printJSON(out io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = out.Write(append(data, '\n'))
		return errors.Wrap(err, "failed to write output")
	}
	buf.WriteByte('\n')

	_, err := buf.WriteTo(out)
	return errors.Wrap(err, "failed to write output")
}
