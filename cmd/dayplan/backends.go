package main

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"

	"dayplan/internal/config"
	"dayplan/internal/firebaseapp"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
	"dayplan/internal/store/filestore"
	"dayplan/internal/store/firestore"
	"dayplan/internal/store/mongostore"
	"dayplan/internal/web"
)

type taskLister interface {
	ListByDate(ctx context.Context, ownerID, date string) ([]model.Task, error)
}

type backends struct {
	store    store.Store
	verifier web.TokenVerifier
}

// openBackends opens the configured store and, when Firebase is needed for
// either storage or token verification, a single shared Firebase app.
func openBackends(ctx context.Context, conf *config.Config) (*backends, error) {
	var app *firebase.App
	needFirebase := conf.Store.Driver == "firestore" || conf.Firebase.VerifyTokens
	if needFirebase {
		a, err := firebaseapp.New(ctx, conf.Firebase)
		if err != nil {
			return nil, err
		}
		app = a
	}

	b := &backends{}
	switch conf.Store.Driver {
	case "mongo":
		s, err := mongostore.Connect(ctx, conf.Store.MongoURI, conf.Store.MongoDatabase)
		if err != nil {
			return nil, err
		}
		b.store = s
	case "firestore":
		s, err := firestore.Open(ctx, app)
		if err != nil {
			return nil, err
		}
		b.store = s
	default:
		s, err := filestore.Open(ctx, conf.Store.Path)
		if err != nil {
			return nil, err
		}
		b.store = s
	}
	appLog.Info("store opened", "driver", conf.Store.Driver)

	if conf.Firebase.VerifyTokens {
		v, err := web.NewFirebaseVerifier(ctx, app)
		if err != nil {
			_ = b.store.Close(ctx)
			return nil, fmt.Errorf("token verifier: %w", err)
		}
		b.verifier = v
	}
	return b, nil
}
