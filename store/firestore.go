package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection  = "users"
	statesCollection = "states"
)

// FirestoreStore persists credentials in Firestore: one document per user in
// the "users" collection holding one sub-map per service, and one document
// per provider key in the "states" collection.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

func (s *FirestoreStore) stateDoc(key string) *firestore.DocumentRef {
	return s.client.Collection(statesCollection).Doc(key)
}

func (s *FirestoreStore) SaveTokens(ctx context.Context, userID, service string, t Tokens) error {
	// Merge so tokens for other services under the same user survive.
	_, err := s.userDoc(userID).Set(ctx, map[string]interface{}{service: t}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("saving %s tokens for user %s: %w", service, userID, err)
	}
	return nil
}

func (s *FirestoreStore) Tokens(ctx context.Context, userID, service string) (Tokens, error) {
	snap, err := s.userDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Tokens{}, ErrNotFound
		}
		return Tokens{}, fmt.Errorf("fetching user document %s: %w", userID, err)
	}

	var services map[string]Tokens
	if err := snap.DataTo(&services); err != nil {
		return Tokens{}, fmt.Errorf("decoding user document %s: %w", userID, err)
	}

	t, ok := services[service]
	if !ok {
		return Tokens{}, ErrNotFound
	}
	return t, nil
}

func (s *FirestoreStore) SaveAuthState(ctx context.Context, key string, st AuthState) error {
	if _, err := s.stateDoc(key).Set(ctx, st); err != nil {
		return fmt.Errorf("saving auth state %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) AuthState(ctx context.Context, key string) (AuthState, error) {
	snap, err := s.stateDoc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return AuthState{}, ErrNotFound
		}
		return AuthState{}, fmt.Errorf("fetching auth state %s: %w", key, err)
	}

	var st AuthState
	if err := snap.DataTo(&st); err != nil {
		return AuthState{}, fmt.Errorf("decoding auth state %s: %w", key, err)
	}
	return st, nil
}
