package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloudbin/b2sdk-go/internal/config"
	"github.com/cloudbin/b2sdk-go/internal/credfile"
	"github.com/cloudbin/b2sdk-go/pkg/b2"
)

// credentialFileName lives alongside config.toml in the platform config
// directory, per credfile's atomic-write/0600 discipline.
const credentialFileName = "credentials.json"

func defaultCredentialPath() string {
	dir := config.DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, credentialFileName)
}

func newLoginCmd() *cobra.Command {
	var keyID, appKey, realm string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize with a B2 application key and save it for later commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(ctxOrBackground(cmd), keyID, appKey, realm)
		},
	}

	cmd.Flags().StringVar(&keyID, "key-id", "", "B2 application key id")
	cmd.Flags().StringVar(&appKey, "application-key", "", "B2 application key")
	cmd.Flags().StringVar(&realm, "realm", "", "B2 API realm (default: production)")

	return cmd
}

func runLogin(ctx context.Context, keyID, appKey, realm string) error {
	if keyID == "" || appKey == "" {
		return fmt.Errorf("--key-id and --application-key are required")
	}

	log := newLogger(flagVerbose)

	client, err := b2.NewClient(ctx, b2.Options{
		KeyID:          keyID,
		ApplicationKey: appKey,
		Realm:          realm,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("authorizing: %w", err)
	}

	defer client.Close()

	path := defaultCredentialPath()
	if path == "" {
		return fmt.Errorf("could not determine credential file path")
	}

	if err := credfile.Save(path, credfile.File{
		KeyID:          keyID,
		ApplicationKey: appKey,
		Realm:          realm,
	}); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	accountID, err := client.AccountID()
	if err != nil {
		return err
	}

	fmt.Printf("authorized account %s, credentials saved to %s\n", accountID, path)

	return nil
}

func newAuthorizedClient(ctx context.Context) (*b2.Client, error) {
	log := newLogger(flagVerbose)

	cfg, err := loadConfig(log)
	if err != nil {
		return nil, err
	}

	path := defaultCredentialPath()

	return b2.NewClientFromCredentialFile(ctx, path, b2.Options{
		Config: cfg,
		Logger: log,
	})
}
