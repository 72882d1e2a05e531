package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/marcogenualdo/ridegate/internal/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps user records in the collection the ride app already
// reads, one document per subject id.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

var _ UserStore = (*FirestoreStore)(nil)

func NewFirestoreStore(ctx context.Context, cfg config.FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("projectID is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("collection is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var client *firestore.Client
	var err error
	if cfg.Database != "" && cfg.Database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{client: client, collection: cfg.Collection}, nil
}

func (s *FirestoreStore) ReadUserRecord(ctx context.Context, subjectID string) (*User, error) {
	doc, err := s.client.Collection(s.collection).Doc(subjectID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", subjectID, err)
	}

	var u User
	if err := doc.DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", subjectID, err)
	}
	if u.ID == "" {
		u.ID = doc.Ref.ID
	}
	return &u, nil
}

func (s *FirestoreStore) CreateUserRecord(ctx context.Context, u *User) error {
	_, err := s.client.Collection(s.collection).Doc(u.ID).Create(ctx, u)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrExists
		}
		return fmt.Errorf("failed to create user %s: %w", u.ID, err)
	}
	return nil
}

func (s *FirestoreStore) TouchLastSeen(ctx context.Context, subjectID string, at time.Time) error {
	_, err := s.client.Collection(s.collection).Doc(subjectID).Update(ctx, []firestore.Update{
		{Path: "lastActive", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update user %s: %w", subjectID, err)
	}
	return nil
}

func (s *FirestoreStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	iter := s.client.Collection(s.collection).Where("username", "==", username).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query username: %w", err)
	}
	return true, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
