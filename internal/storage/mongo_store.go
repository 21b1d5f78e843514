package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"slidedeck/internal/domain"
)

const mongoDeckCollection = "decks"

// deckDocument is the stored form of a deck. The deck itself is kept as its
// JSON encoding so block variants round-trip exactly.
type deckDocument struct {
	ID         string `bson:"_id"`
	Title      string `bson:"title"`
	Theme      string `bson:"theme"`
	SlideCount int    `bson:"slideCount"`
	DeckJSON   string `bson:"deckJson"`
	CreatedAt  int64  `bson:"createdAt"`
	UpdatedAt  int64  `bson:"updatedAt"`
}

func toDeckDocument(d *domain.Deck, now time.Time) (deckDocument, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return deckDocument{}, fmt.Errorf("encode deck %s: %w", d.ID, err)
	}
	return deckDocument{
		ID:         d.ID,
		Title:      d.Title,
		Theme:      d.Theme,
		SlideCount: len(d.Slides),
		DeckJSON:   string(raw),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  now.UnixMilli(),
	}, nil
}

func (doc deckDocument) deck() (*domain.Deck, error) {
	var d domain.Deck
	if err := json.Unmarshal([]byte(doc.DeckJSON), &d); err != nil {
		return nil, fmt.Errorf("decode deck %s: %w", doc.ID, err)
	}
	return &d, nil
}

func (doc deckDocument) summary() domain.DeckSummary {
	return domain.DeckSummary{
		ID:         doc.ID,
		Title:      doc.Title,
		SlideCount: doc.SlideCount,
		UpdatedAt:  time.UnixMilli(doc.UpdatedAt).UTC(),
	}
}

// MongoDeckStore implements domain.DeckRepository on MongoDB.
type MongoDeckStore struct {
	client *mongo.Client
	decks  *mongo.Collection
	now    func() time.Time
}

// OpenMongo connects to uri and uses database dbName ("slidedeck" if empty).
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoDeckStore, error) {
	if dbName == "" {
		dbName = "slidedeck"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Printf("[MONGO] Database: %s", dbName)
	return &MongoDeckStore{
		client: client,
		decks:  client.Database(dbName).Collection(mongoDeckCollection),
		now:    time.Now,
	}, nil
}

func (s *MongoDeckStore) SaveDeck(ctx context.Context, d *domain.Deck) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("save deck: missing id")
	}
	doc, err := toDeckDocument(d, s.now())
	if err != nil {
		return err
	}
	_, err = s.decks.ReplaceOne(ctx, bson.D{{Key: "_id", Value: d.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save deck %s: %w", d.ID, err)
	}
	return nil
}

func (s *MongoDeckStore) GetDeck(ctx context.Context, id string) (*domain.Deck, error) {
	var doc deckDocument
	err := s.decks.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get deck %s: %w", id, err)
	}
	return doc.deck()
}

func (s *MongoDeckStore) ListDecks(ctx context.Context) ([]domain.DeckSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "deckJson", Value: 0}})
	cursor, err := s.decks.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	var docs []deckDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	out := make([]domain.DeckSummary, len(docs))
	for i, doc := range docs {
		out[i] = doc.summary()
	}
	return out, nil
}

func (s *MongoDeckStore) DeleteDeck(ctx context.Context, id string) error {
	res, err := s.decks.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete deck %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	return nil
}

func (s *MongoDeckStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
