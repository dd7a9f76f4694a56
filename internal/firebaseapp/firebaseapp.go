// Package firebaseapp initializes the Firebase Admin SDK app shared by the
// Firestore store and ID-token verification.
package firebaseapp

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"dayplan/internal/config"
)

// New builds the Firebase app for cfg. Without a credentials file the SDK
// falls back to application default credentials.
func New(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	if cfg.ProjectID == "" && cfg.CredentialsFile == "" {
		return nil, errors.New("firebase: project_id or credentials_file is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: error initializing app: %w", err)
	}
	return app, nil
}
