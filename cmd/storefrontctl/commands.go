package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/delegation"
	"github.com/wso2/bookstore-consent-api/internal/keys"
	"github.com/wso2/bookstore-consent-api/internal/service"
)

const (
	publicKeyFileName  = "storefront_public.pem"
	privateKeyFileName = "storefront_private.pem"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "storefrontctl",
		Short:        "Manage storefront key material and tokens",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the configuration file")

	cmd.AddCommand(
		keygenCmd(),
		tokenCmd(&configPath),
	)

	return cmd
}

// keygenCmd generates the storefront RSA key pair
func keygenCmd() *cobra.Command {
	var outDir string
	var bits int
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the storefront RSA signing key pair",
		Long: `Generate the storefront RSA key pair used to sign authorization tokens.

The public key is registered with the Consent Broker. The private key file is
written with 0600 permissions and must never leave the storefront server.`,
		Example: `  storefrontctl keygen --out ./secrets
  storefrontctl keygen --out ./secrets --bits 4096 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bits < 2048 {
				return fmt.Errorf("key size must be at least 2048 bits, got %d", bits)
			}

			publicPath := filepath.Join(outDir, publicKeyFileName)
			privatePath := filepath.Join(outDir, privateKeyFileName)
			if !force {
				for _, path := range []string{publicPath, privatePath} {
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists, use --force to overwrite", path)
					}
				}
			}

			privateKey, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}
			publicPEM, err := keys.EncodePublicKeyPEM(&privateKey.PublicKey)
			if err != nil {
				return err
			}
			privatePEM, err := keys.EncodePrivateKeyPEM(privateKey)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(privatePath, []byte(privatePEM), 0o600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(publicPath, []byte(publicPEM), 0o644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nWrote %s\n", publicPath, privatePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the key files to")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")

	return cmd
}

// tokenCmd groups the token commands
func tokenCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect storefront tokens",
	}

	cmd.AddCommand(
		tokenIssueCmd(configPath),
		tokenVerifyPartnerCmd(configPath),
	)

	return cmd
}

func tokenIssueCmd(configPath *string) *cobra.Command {
	var subjectID string
	var tenantID string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an authorization token for a subject",
		Example: `  storefrontctl token issue --subject user123 --tenant mall001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := newTokenService(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			issued, err := tokens.IssueAuthorizationToken(context.Background(), subjectID, tenantID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), issued)
		},
	}

	cmd.Flags().StringVar(&subjectID, "subject", "", "customer identifier at the Consent Broker")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID, defaults to the configured storefront tenant")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func tokenVerifyPartnerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-partner <partner-token>",
		Short: "Verify a partner token and print the embedded delegate token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := newTokenService(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			response, err := tokens.VerifyPartnerToken(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), response)
		},
	}
}

// newTokenService builds a token service without a broker connection; only
// local issuance and verification are available.
func newTokenService(configPath string, logOutput io.Writer) (*service.TokenService, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(logOutput)
	logger.SetLevel(logrus.WarnLevel)

	provider := keys.NewProvider(cfg.Keys)
	verifier := delegation.NewVerifier(provider, cfg.Tokens.DelegationMaxLifetime, logger)
	return service.NewTokenService(provider, nil, verifier, cfg.Tokens, cfg.Storefront.TenantID, logger), nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
