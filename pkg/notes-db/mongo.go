package notesdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mrshanahan/notes-sync/pkg/notes"
)

// BSON datetimes only carry milliseconds.
const mongoResolution = time.Millisecond

type noteDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	Tags      []string  `bson:"tags"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *noteDocument) toNote() *notes.Note {
	return &notes.Note{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		Content:   d.Content,
		Tags:      d.Tags,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type principalDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

type sessionDocument struct {
	ID          string    `bson:"_id"`
	PrincipalID string    `bson:"principal_id"`
	CreatedAt   time.Time `bson:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	client     *mongo.Client
	notes      *mongo.Collection
	principals *mongo.Collection
	sessions   *mongo.Collection
	now        func() time.Time
}

var _ Store = (*MongoStore)(nil)

func ConnectMongo(ctx context.Context, uri string, dbName string, opts ...Option) (*MongoStore, error) {
	o := buildOptions(opts)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo.Connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:     client,
		notes:      db.Collection("notes"),
		principals: db.Collection("principals"),
		sessions:   db.Collection("sessions"),
		now:        o.now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.notes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return errors.Wrap(err, "create notes index")
	}
	_, err = s.principals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "create principals index")
	}
	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "principal_id", Value: 1}},
	})
	return errors.Wrap(err, "create sessions index")
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// Principals

func (s *MongoStore) CreatePrincipal(ctx context.Context, email string, passwordHash string) (*notes.Principal, error) {
	doc := &principalDocument{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC().Truncate(mongoResolution),
	}
	if _, err := s.principals.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, notes.ErrPrincipalExists
		}
		return nil, errors.Wrap(err, "insert principal")
	}
	return &notes.Principal{ID: doc.ID, Email: doc.Email, CreatedAt: doc.CreatedAt}, nil
}

func (s *MongoStore) GetPrincipal(ctx context.Context, id string) (*notes.Principal, error) {
	record, err := s.findPrincipal(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return &record.Principal, nil
}

func (s *MongoStore) GetPrincipalByEmail(ctx context.Context, email string) (*PrincipalRecord, error) {
	return s.findPrincipal(ctx, bson.M{"email": email})
}

func (s *MongoStore) findPrincipal(ctx context.Context, filter bson.M) (*PrincipalRecord, error) {
	var doc principalDocument
	err := s.principals.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notes.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "find principal")
	}
	return &PrincipalRecord{
		Principal:    notes.Principal{ID: doc.ID, Email: doc.Email, CreatedAt: doc.CreatedAt.UTC()},
		PasswordHash: doc.PasswordHash,
	}, nil
}

// Sessions

func (s *MongoStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.sessions.InsertOne(ctx, &sessionDocument{
		ID:          session.ID,
		PrincipalID: session.PrincipalID,
		CreatedAt:   session.CreatedOn,
		ExpiresAt:   session.ExpiresOn,
	})
	return errors.Wrap(err, "insert session")
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var doc sessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notes.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "find session")
	}
	return &Session{
		ID:          doc.ID,
		PrincipalID: doc.PrincipalID,
		CreatedOn:   doc.CreatedAt.UTC(),
		ExpiresOn:   doc.ExpiresAt.UTC(),
	}, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	return errors.Wrap(err, "delete session")
}

func (s *MongoStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.sessions.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	return result.DeletedCount, nil
}

// Notes

func (s *MongoStore) ListNotes(ctx context.Context, ownerID string) ([]*notes.Note, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.notes.Find(ctx, bson.M{"user_id": ownerID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find notes")
	}
	defer cursor.Close(ctx)

	var docs []*noteDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode notes")
	}

	result := make([]*notes.Note, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toNote())
	}
	return result, nil
}

func (s *MongoStore) GetNote(ctx context.Context, ownerID string, id string) (*notes.Note, error) {
	var doc noteDocument
	err := s.notes.FindOne(ctx, bson.M{"_id": id, "user_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notes.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "find note %s", id)
	}
	return doc.toNote(), nil
}

func (s *MongoStore) CreateNote(ctx context.Context, ownerID string, input notes.NoteInput) (*notes.Note, error) {
	now := s.now().UTC().Truncate(mongoResolution)
	doc := &noteDocument{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		Title:     input.Title,
		Content:   input.Content,
		Tags:      input.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.notes.InsertOne(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "insert note")
	}
	return doc.toNote(), nil
}

// UpdateNote applies the update in a single server-side operation so that
// concurrent partial updates to different fields do not overwrite each other.
func (s *MongoStore) UpdateNote(ctx context.Context, ownerID string, id string, update notes.NoteUpdate) (*notes.Note, error) {
	now := s.now().UTC().Truncate(mongoResolution)

	// Pipeline stages treat "$..." strings as field paths, so user values go
	// through $literal.
	set := bson.D{}
	if update.Title != nil {
		set = append(set, bson.E{Key: "title", Value: bson.M{"$literal": *update.Title}})
	}
	if update.Content != nil {
		set = append(set, bson.E{Key: "content", Value: bson.M{"$literal": *update.Content}})
	}
	if update.Tags != nil {
		tags := *update.Tags
		if tags == nil {
			tags = []string{}
		}
		set = append(set, bson.E{Key: "tags", Value: bson.M{"$literal": tags}})
	}
	// updated_at = max(now, updated_at + 1ms) keeps it strictly advancing.
	set = append(set, bson.E{Key: "updated_at", Value: bson.M{
		"$max": bson.A{now, bson.M{"$add": bson.A{"$updated_at", mongoResolution.Milliseconds()}}},
	}})

	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc noteDocument
	err := s.notes.FindOneAndUpdate(ctx, bson.M{"_id": id, "user_id": ownerID}, pipeline, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notes.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "update note %s", id)
	}
	return doc.toNote(), nil
}

func (s *MongoStore) DeleteNote(ctx context.Context, ownerID string, id string) (bool, error) {
	result, err := s.notes.DeleteOne(ctx, bson.M{"_id": id, "user_id": ownerID})
	if err != nil {
		return false, errors.Wrapf(err, "delete note %s", id)
	}
	return result.DeletedCount > 0, nil
}
