// README: Firebase Admin SDK wiring for center-staff sign-in verification.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// StaffToken is the verified identity of a signed-in collection-center
// user, extracted from their Firebase ID token.
type StaffToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier checks a raw Firebase ID token and returns the staff
// identity it asserts. The gateway's auth middleware consumes this; tests
// substitute a stub.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*StaffToken, error)
}

// firebaseVerifier backs TokenVerifier with the Firebase Admin SDK.
type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier builds the production TokenVerifier for the project
// the collection-center apps sign in against. A non-empty credentialsFile
// points at service-account JSON; otherwise application-default credentials
// (GOOGLE_APPLICATION_CREDENTIALS) apply. projectID must match the app's
// Firebase project so token audiences verify.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*StaffToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &StaffToken{UID: token.UID, Claims: token.Claims}, nil
}
