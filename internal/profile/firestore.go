package profile

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on a Cloud Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore builds a store over the profile collection.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, collection: Collection}
}

// Insert adds p as a new auto-id document.
func (s *FirestoreStore) Insert(ctx context.Context, p Profile) (string, error) {
	ref, _, err := s.client.Collection(s.collection).Add(ctx, p)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// Lookup reads the documents whose uid field equals uid and returns the last one.
func (s *FirestoreStore) Lookup(ctx context.Context, uid string) (Profile, error) {
	docs, err := s.byUID(uid).Documents(ctx).GetAll()
	if err != nil {
		return Profile{}, err
	}
	profiles, err := decode(docs)
	if err != nil {
		return Profile{}, err
	}
	return last(profiles)
}

// List returns all profile documents.
func (s *FirestoreStore) List(ctx context.Context) ([]Profile, error) {
	docs, err := s.client.Collection(s.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decode(docs)
}

// Delete removes the document with docID.
func (s *FirestoreStore) Delete(ctx context.Context, docID string) error {
	_, err := s.client.Collection(s.collection).Doc(docID).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Watch streams query snapshots for uid until the subscription is closed.
func (s *FirestoreStore) Watch(ctx context.Context, uid string) (*Subscription, error) {
	query := s.byUID(uid)
	return newSubscription(ctx, func(ctx context.Context, emit emitFunc) error {
		it := query.Snapshots(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return nil
			}
			if err != nil {
				return err
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				return err
			}
			profiles, err := decode(docs)
			if err != nil {
				return err
			}
			if !emit(profiles) {
				return nil
			}
		}
	}), nil
}

func (s *FirestoreStore) byUID(uid string) firestore.Query {
	return s.client.Collection(s.collection).Where("uid", "==", uid)
}

func decode(docs []*firestore.DocumentSnapshot) ([]Profile, error) {
	out := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		var p Profile
		if err := doc.DataTo(&p); err != nil {
			return nil, err
		}
		p.DocID = doc.Ref.ID
		out = append(out, p)
	}
	return out, nil
}
