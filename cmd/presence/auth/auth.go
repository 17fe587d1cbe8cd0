// Package authcmder provides the auth command for storing API credentials.
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

	"github.com/papercomputeco/presence/pkg/cliui"
	"github.com/papercomputeco/presence/pkg/credentials"
)

const authLongDesc string = `Store API credentials for model providers and channels.

Credentials are stored in credentials.toml in the .presence/ directory.
When nothing is stored for a provider its environment variable is used
instead (OPENAI_API_KEY, ANTHROPIC_API_KEY, GITHUB_TOKEN, X_ACCESS_TOKEN).

Providers:
  openai, anthropic   Generation and judge models
  github              Token for reading private repositories
  x                   OAuth2 user access token for posting

For x, pass --refresh-token, --client-id and --client-secret as well so
that an expired access token is renewed automatically.

Examples:
  presence auth anthropic              Prompt for an Anthropic API key
  presence auth x --refresh-token r --client-id c --client-secret s
  presence auth --list                 List stored credentials
  presence auth --remove openai        Remove stored OpenAI credentials
  echo $KEY | presence auth openai     Pipe a key from stdin`

const authShortDesc string = "Store API credentials"

type authFlags struct {
	list         bool
	remove       string
	refreshToken string
	clientID     string
	clientSecret string
}

func NewAuthCmd() *cobra.Command {
	var flags authFlags

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			out := cmd.OutOrStdout()

			switch {
			case flags.list:
				return runList(out, configDir)
			case flags.remove != "":
				return runRemove(out, flags.remove, configDir)
			default:
				if len(args) == 0 {
					return fmt.Errorf("provider argument required\n\nSupported providers: %s",
						strings.Join(credentials.SupportedProviders(), ", "))
				}
				return runAuth(out, cmd.InOrStdin(), args[0], configDir, flags)
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&flags.list, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&flags.remove, "remove", "", "Remove stored credentials for a provider")
	cmd.Flags().StringVar(&flags.refreshToken, "refresh-token", "", "OAuth2 refresh token (x only)")
	cmd.Flags().StringVar(&flags.clientID, "client-id", "", "OAuth2 client id (x only)")
	cmd.Flags().StringVar(&flags.clientSecret, "client-secret", "", "OAuth2 client secret (x only)")

	return cmd
}

func runAuth(out io.Writer, in io.Reader, provider, configDir string, flags authFlags) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	refresh := flags.refreshToken != "" || flags.clientID != "" || flags.clientSecret != ""
	if refresh && provider != credentials.ProviderX {
		return errors.New("--refresh-token, --client-id and --client-secret only apply to x")
	}
	if refresh && (flags.refreshToken == "" || flags.clientID == "") {
		return errors.New("--refresh-token and --client-id must be given together")
	}

	apiKey, err := readAPIKey(out, in, provider)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if refresh {
		err = mgr.SetCredential(provider, credentials.ProviderCredential{
			APIKey:       apiKey,
			RefreshToken: flags.refreshToken,
			ClientID:     flags.clientID,
			ClientSecret: flags.clientSecret,
		})
	} else {
		err = mgr.SetKey(provider, apiKey)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Stored %s credentials %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(provider),
		cliui.DimStyle.Render("("+mgr.GetTarget()+")"),
	)

	if provider == credentials.ProviderX && !refresh {
		fmt.Fprintf(out, "\n  %s Without a refresh token the access token expires in about two hours.\n",
			cliui.WarnStyle.Render("!"))
	}

	fmt.Fprintln(out)
	return nil
}

func runList(out io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	providers, err := mgr.ListProviders()
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Fprintf(out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'presence auth <provider>' to store credentials.\n")
		fmt.Fprintf(out, "  Supported providers: %s\n\n", strings.Join(credentials.SupportedProviders(), ", "))
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, p := range providers {
		envVar := credentials.EnvVarForProvider(p)
		if envVar != "" {
			fmt.Fprintf(out, "  %s  %s  %s\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(p),
				cliui.DimStyle.Render("fallback "+envVar),
			)
		} else {
			fmt.Fprintf(out, "  %s  %s\n", cliui.SuccessMark, cliui.NameStyle.Render(p))
		}
	}
	fmt.Fprintln(out)

	return nil
}

func runRemove(out io.Writer, provider, configDir string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(provider))

	return nil
}

// readAPIKey reads an API key from in. If in is not a terminal, it reads the
// first line. Otherwise, it prompts interactively with hidden input.
func readAPIKey(out io.Writer, in io.Reader, provider string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			return scanner.Text(), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return "", errors.New("no input received on stdin")
	}

	// Interactive terminal
	envVar := credentials.EnvVarForProvider(provider)
	fmt.Fprintf(out, "Enter API key for %s (%s): ", provider, envVar)

	keyBytes, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}

	return string(keyBytes), nil
}
