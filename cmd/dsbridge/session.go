package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dsbridge/dsbridge/pkg/synology"
)

var errNoSession = errors.New("no active DSM session")

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the DSM user of the current CGI request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := synology.CGISession(nil)
			username, ok, err := current.bridge.Authenticate(cmd.Context(), sess)
			if err != nil {
				return err
			}
			if !ok {
				return errNoSession
			}
			fmt.Fprintln(cmd.OutOrStdout(), username)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the SynoToken of the current CGI request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := synology.CGISession(nil)
			token, ok, err := current.bridge.SynoToken(cmd.Context(), sess)
			if err != nil {
				return err
			}
			if !ok {
				return errNoSession
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var noRelay bool

	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log USERNAME in to DSM and write a CGI response",
		Long: `Log USERNAME in to DSM. The password is read from the first line of
standard input. The CGI response written to standard output carries the
headers DSM issued, including the session cookie.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			out := http.Header{}
			sess := synology.CGISession(out)
			ok, err := current.bridge.Login(cmd.Context(), sess, args[0], password, !noRelay)
			if err != nil {
				return err
			}

			body, err := json.Marshal(map[string]bool{"success": ok})
			if err != nil {
				return err
			}
			if !ok {
				out.Set("Status", "401 Unauthorized")
			}
			return writeCGI(cmd.OutOrStdout(), out, body)
		},
	}

	cmd.Flags().BoolVar(&noRelay, "no-relay", false, "Do not copy DSM response headers to the output")
	return cmd
}

func logoutCmd() *cobra.Command {
	var noRelay bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the DSM session of the current CGI request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := http.Header{}
			sess := synology.CGISession(out)
			if err := current.bridge.Logout(cmd.Context(), sess, !noRelay); err != nil {
				return err
			}
			return writeCGI(cmd.OutOrStdout(), out, nil)
		},
	}

	cmd.Flags().BoolVar(&noRelay, "no-relay", false, "Do not copy DSM response headers to the output")
	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required on standard input")
	}
	return password, nil
}

// writeCGI writes header, a blank line and body in CGI response form.
func writeCGI(w io.Writer, header http.Header, body []byte) error {
	if len(body) > 0 && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	if err := header.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
