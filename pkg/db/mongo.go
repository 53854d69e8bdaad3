package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sneakpeak/pkg/domain"
)

// Collection names, matching the SQL table names.
const (
	projectsCollection    = "projects"
	competitorsCollection = "competitors"
	targetsCollection     = "targets"
	snapshotsCollection   = "snapshots"
	changesCollection     = "changes"
)

// MongoClient wraps the MongoDB client and database connection.
type MongoClient struct {
	mongoClient *mongo.Client
	database    *mongo.Database
}

// NewMongoClient creates a new database client. Connection errors surface
// from Connect.
func NewMongoClient(connectionString, databaseName string) *MongoClient {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		return &MongoClient{}
	}

	return &MongoClient{
		mongoClient: mongoClient,
		database:    mongoClient.Database(databaseName),
	}
}

// Connect verifies the connection to MongoDB.
func (c *MongoClient) Connect(ctx context.Context) error {
	if c.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return c.mongoClient.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (c *MongoClient) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

// Store returns a MongoStore over the client's database.
func (c *MongoClient) Store() (*MongoStore, error) {
	if c.database == nil {
		return nil, ErrNotConnected
	}
	return &MongoStore{client: c, database: c.database, now: utcNow}, nil
}

// MongoStore implements Store with one collection per entity.
type MongoStore struct {
	client   *MongoClient
	database *mongo.Database
	now      func() time.Time
}

// ListTargets reads the three organisational collections and joins them in
// memory, ordered by name then ID.
func (s *MongoStore) ListTargets(ctx context.Context) ([]domain.TargetRef, error) {
	var projects []domain.Project
	if err := s.findAll(ctx, projectsCollection, bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var competitors []domain.Competitor
	if err := s.findAll(ctx, competitorsCollection, bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}, &competitors); err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}
	var targets []domain.Target
	if err := s.findAll(ctx, targetsCollection, bson.D{{Key: "url", Value: 1}, {Key: "_id", Value: 1}}, &targets); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	targetsByCompetitor := make(map[string][]domain.Target)
	for _, t := range targets {
		targetsByCompetitor[t.CompetitorID] = append(targetsByCompetitor[t.CompetitorID], t)
	}
	competitorsByProject := make(map[string][]domain.Competitor)
	for _, c := range competitors {
		c.Targets = targetsByCompetitor[c.ID]
		competitorsByProject[c.ProjectID] = append(competitorsByProject[c.ProjectID], c)
	}
	for i := range projects {
		projects[i].Competitors = competitorsByProject[projects[i].ID]
	}

	return domain.Flatten(projects), nil
}

func (s *MongoStore) findAll(ctx context.Context, collection string, sort bson.D, out any) error {
	cursor, err := s.database.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(sort))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("cursor error: %w", err)
	}
	return nil
}

// GetLatestSuccessfulSnapshot returns (nil, nil) when no successful snapshot exists.
func (s *MongoStore) GetLatestSuccessfulSnapshot(ctx context.Context, targetID string) (*domain.Snapshot, error) {
	filter := bson.M{"target_id": targetID, "status": string(domain.SnapshotSuccess)}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var snap domain.Snapshot
	err := s.database.Collection(snapshotsCollection).FindOne(ctx, filter, opts).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for target %s: %w", targetID, err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return &snap, nil
}

// InsertSnapshot appends a snapshot document.
func (s *MongoStore) InsertSnapshot(ctx context.Context, targetID string, content *string, status domain.SnapshotStatus) (*domain.Snapshot, error) {
	snap := newSnapshot(targetID, content, status, s.now())
	if _, err := s.database.Collection(snapshotsCollection).InsertOne(ctx, snap); err != nil {
		return nil, fmt.Errorf("insert snapshot for target %s: %w", targetID, err)
	}
	return snap, nil
}

// InsertChange appends a change document.
func (s *MongoStore) InsertChange(ctx context.Context, snapshotID, diffText string) (*domain.Change, error) {
	change := &domain.Change{ID: newID(), SnapshotID: snapshotID, DiffContent: diffText}
	if _, err := s.database.Collection(changesCollection).InsertOne(ctx, change); err != nil {
		return nil, fmt.Errorf("insert change for snapshot %s: %w", snapshotID, err)
	}
	return change, nil
}

// SeedProjects upserts every project, competitor and target by ID.
func (s *MongoStore) SeedProjects(ctx context.Context, projects []domain.Project) error {
	assignIDs(projects)
	opts := options.Replace().SetUpsert(true)

	for _, p := range projects {
		if _, err := s.database.Collection(projectsCollection).ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts); err != nil {
			return fmt.Errorf("upsert project %q: %w", p.Name, err)
		}
		for _, c := range p.Competitors {
			if _, err := s.database.Collection(competitorsCollection).ReplaceOne(ctx, bson.M{"_id": c.ID}, c, opts); err != nil {
				return fmt.Errorf("upsert competitor %q: %w", c.Name, err)
			}
			for _, t := range c.Targets {
				if _, err := s.database.Collection(targetsCollection).ReplaceOne(ctx, bson.M{"_id": t.ID}, t, opts); err != nil {
					return fmt.Errorf("upsert target %q: %w", t.URL, err)
				}
			}
		}
	}
	return nil
}

// Migrate creates the index backing the latest-snapshot lookup.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.database.Collection(snapshotsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "target_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("create snapshot index: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}
