// Package authcmder provides the auth command for storing embedding API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/quill/pkg/cliui"
	"github.com/papercomputeco/quill/pkg/credentials"
)

const authLongDesc string = `Store API credentials for embedding providers.

Credentials are stored in credentials.toml in the .quill/ directory and used
whenever embedding.api_key is not configured. The provider's environment
variable, when set, takes precedence over the stored key.

Supported providers: voyage

Examples:
  quill auth voyage              Prompt for a Voyage AI API key
  quill auth --list              List stored credentials
  quill auth --remove voyage     Remove stored Voyage AI credentials
  echo $KEY | quill auth voyage  Pipe API key from stdin`

const authShortDesc string = "Store API credentials for embedding providers"

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			mgr, err := credentials.NewManager(configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}

			w := cmd.OutOrStdout()
			switch {
			case listFlag:
				return runList(w, mgr)
			case removeFlag != "":
				return runRemove(w, mgr, removeFlag)
			default:
				if len(args) == 0 {
					return fmt.Errorf("provider argument required\n\nSupported providers: %s",
						strings.Join(credentials.SupportedProviders(), ", "))
				}
				return runAuth(w, cmd.InOrStdin(), mgr, args[0])
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove stored credentials for a provider")

	return cmd
}

func runAuth(w io.Writer, in io.Reader, mgr *credentials.Manager, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	apiKey, err := readAPIKey(w, in, provider)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	if err := mgr.SetKey(provider, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(provider),
		cliui.DimStyle.Render("(overridden by "+credentials.EnvVarForProvider(provider)+")"),
	)
	return nil
}

func runList(w io.Writer, mgr *credentials.Manager) error {
	providers, err := mgr.ListProviders()
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Fprintf(w, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(w, "  Use 'quill auth <provider>' to store credentials.\n")
		fmt.Fprintf(w, "  Supported providers: %s\n\n", strings.Join(credentials.SupportedProviders(), ", "))
		return nil
	}

	fmt.Fprintf(w, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, p := range providers {
		if envVar := credentials.EnvVarForProvider(p); envVar != "" {
			fmt.Fprintf(w, "  %s  %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(p), cliui.DimStyle.Render("← "+envVar))
		} else {
			fmt.Fprintf(w, "  %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(p))
		}
	}
	fmt.Fprintln(w)

	return nil
}

func runRemove(w io.Writer, mgr *credentials.Manager, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(provider))
	return nil
}

// readAPIKey prompts with hidden input when in is a terminal and reads the
// first line otherwise.
func readAPIKey(w io.Writer, in io.Reader, provider string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(w, "Enter API key for %s (%s): ", provider, credentials.EnvVarForProvider(provider))

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
