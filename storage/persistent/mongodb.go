package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/habithive/habithive/models"
)

// MongoStore is a HabitStore backed by MongoDB. Habits live in the 'habits'
// collection; completion records live in the separate 'progress' collection,
// one document per (habit, date) pair.
type MongoStore struct {
	client *mongo.Client
	dbName string
}

// NewMongoStore creates a new instance of MongoStore. This function doesn't
// establish a connection; use the Connect method for that.
func NewMongoStore() *MongoStore {
	return &MongoStore{}
}

// Connect establishes a connection to the MongoDB server at the given URI and
// sets up indexes and unique constraints as necessary.
func (m *MongoStore) Connect(dbName, uri string) error {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	usersCollection := m.client.Database(m.dbName).Collection("users")

	// Every user has a unique email and username.
	emailIndexModel := mongo.IndexModel{
		Keys:    bson.M{"email": 1},
		Options: options.Index().SetUnique(true),
	}
	_, err = usersCollection.Indexes().CreateOne(ctx, emailIndexModel)
	if err != nil {
		return fmt.Errorf("error creating email index: %v", err)
	}

	usernameIndexModel := mongo.IndexModel{
		Keys:    bson.M{"username": 1},
		Options: options.Index().SetUnique(true),
	}
	_, err = usersCollection.Indexes().CreateOne(ctx, usernameIndexModel)
	if err != nil {
		return fmt.Errorf("error creating username index: %v", err)
	}

	habitsCollection := m.client.Database(m.dbName).Collection("habits")

	// A user can't have two habits with the same name.
	userIDNameIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	_, err = habitsCollection.Indexes().CreateOne(ctx, userIDNameIndexModel)
	if err != nil {
		return fmt.Errorf("error creating user_id and name index: %v", err)
	}

	progressCollection := m.client.Database(m.dbName).Collection("progress")

	// At most one completion record per (user, habit, date). Upsert-by-date
	// is the primary guard; the index backstops duplicate inserts.
	progressIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "habit_id", Value: 1},
			{Key: "date", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	_, err = progressCollection.Indexes().CreateOne(ctx, progressIndexModel)
	if err != nil {
		return fmt.Errorf("error creating progress index: %v", err)
	}

	journalCollection := m.client.Database(m.dbName).Collection("journal_entries")

	journalIndexModel := mongo.IndexModel{
		Keys:    bson.M{"user_id": 1},
		Options: options.Index(),
	}
	_, err = journalCollection.Indexes().CreateOne(ctx, journalIndexModel)
	if err != nil {
		return fmt.Errorf("error creating journal user_id index: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
func (m *MongoStore) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

func (m *MongoStore) habits() *mongo.Collection {
	return m.client.Database(m.dbName).Collection("habits")
}

func (m *MongoStore) progress() *mongo.Collection {
	return m.client.Database(m.dbName).Collection("progress")
}

// habitRefFilter matches a habit by backend id or, failing that, by name.
// The REST-facing handlers address habits by name while stored documents are
// id-keyed, so both forms are accepted.
func habitRefFilter(ownerID, habitRef string) bson.M {
	return bson.M{
		"user_id": ownerID,
		"$or": bson.A{
			bson.M{"_id": habitRef},
			bson.M{"name": habitRef},
		},
	}
}

// ListActiveHabits returns the owner's non-archived habits, newest first.
func (m *MongoStore) ListActiveHabits(ctx context.Context, ownerID string) ([]models.Habit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.habits().Find(ctx, bson.M{"user_id": ownerID, "is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var habits []models.Habit
	for cursor.Next(ctx) {
		var habit models.Habit
		if err := cursor.Decode(&habit); err != nil {
			return nil, err
		}
		habits = append(habits, habit)
	}

	return habits, cursor.Err()
}

// GetHabit resolves a habit reference (id or name) for the owner.
func (m *MongoStore) GetHabit(ctx context.Context, ownerID, habitRef string) (*models.Habit, error) {
	habit := &models.Habit{}
	err := m.habits().FindOne(ctx, habitRefFilter(ownerID, habitRef)).Decode(habit)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return habit, nil
}

// CreateHabit adds a new habit document to the 'habits' collection and
// returns it with its assigned id.
func (m *MongoStore) CreateHabit(ctx context.Context, ownerID string, habit *models.Habit) (*models.Habit, error) {
	habit.Name = strings.TrimSpace(habit.Name)
	if habit.Privacy == "" {
		habit.Privacy = models.PrivacyPublic
	}
	if err := validateNewHabit(habit); err != nil {
		return nil, err
	}

	habit.ID = primitive.NewObjectID().Hex()
	habit.UserID = ownerID
	habit.IsActive = true
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = time.Now()
	}
	if habit.Category == "" {
		habit.Category = "General"
	}

	_, err := m.habits().InsertOne(ctx, habit)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return nil, fmt.Errorf("a habit with the name '%s' already exists", habit.Name)
				}
			}
		}
		return nil, err
	}
	return habit, nil
}

// UpdateHabit applies the mutable fields of update to an existing habit.
// The habit name and creation time are never touched.
func (m *MongoStore) UpdateHabit(ctx context.Context, ownerID, habitRef string, update models.HabitUpdate) error {
	set := bson.M{}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Category != nil {
		set["category"] = *update.Category
	}
	if update.Privacy != nil {
		set["privacy"] = *update.Privacy
	}
	if update.ReminderEnabled != nil {
		set["reminder_enabled"] = *update.ReminderEnabled
	}
	if update.ReminderTime != nil {
		set["reminder_time"] = *update.ReminderTime
	}
	if update.IsActive != nil {
		set["is_active"] = *update.IsActive
	}
	if len(set) == 0 {
		return nil
	}

	result, err := m.habits().UpdateOne(ctx, habitRefFilter(ownerID, habitRef), bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHabit removes a habit document and every progress record that
// references it.
func (m *MongoStore) DeleteHabit(ctx context.Context, ownerID, habitRef string) error {
	habit, err := m.GetHabit(ctx, ownerID, habitRef)
	if err != nil {
		return err
	}

	_, err = m.progress().DeleteMany(ctx, bson.M{"user_id": ownerID, "habit_id": habit.ID})
	if err != nil {
		return err
	}

	result, err := m.habits().DeleteOne(ctx, bson.M{"_id": habit.ID, "user_id": ownerID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompletions returns the owner's completion records, restricted to the
// given date keys when a filter is provided.
func (m *MongoStore) ListCompletions(ctx context.Context, ownerID string, dateKeys []string) ([]models.CompletionRecord, error) {
	filter := bson.M{"user_id": ownerID}
	if dateKeys != nil {
		filter["date"] = bson.M{"$in": dateKeys}
	}

	cursor, err := m.progress().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.CompletionRecord
	for cursor.Next(ctx) {
		var record models.CompletionRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, cursor.Err()
}

// SetCompletion upserts (done=true) or deletes (done=false) the completion
// record for the given habit and date key. Both directions are idempotent.
func (m *MongoStore) SetCompletion(ctx context.Context, ownerID, habitRef, dateKey string, done bool) error {
	habit, err := m.GetHabit(ctx, ownerID, habitRef)
	if err != nil {
		return err
	}

	key := bson.M{"user_id": ownerID, "habit_id": habit.ID, "date": dateKey}
	if done {
		update := bson.M{"$setOnInsert": bson.M{
			"_id":      primitive.NewObjectID().Hex(),
			"user_id":  ownerID,
			"habit_id": habit.ID,
			"date":     dateKey,
		}}
		_, err = m.progress().UpdateOne(ctx, key, update, options.Update().SetUpsert(true))
		return err
	}

	// DeleteMany rather than DeleteOne so stray duplicates are cleared too.
	_, err = m.progress().DeleteMany(ctx, key)
	return err
}

// AddUser adds a new user document to the 'users' collection.
func (m *MongoStore) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = primitive.NewObjectID().Hex()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	collection := m.client.Database(m.dbName).Collection("users")
	_, err := collection.InsertOne(ctx, user)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return nil, fmt.Errorf("an account with this email or username already exists")
				}
			}
		}
		return nil, err
	}
	return user, nil
}

func (m *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	user := &models.User{}
	err := collection.FindOne(ctx, filter).Decode(user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByEmail finds a user document by email.
func (m *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": email})
}

// FindUserByID finds a user document by id.
func (m *MongoStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

// ListUsers returns every user document.
func (m *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, cursor.Err()
}

// AddJournalEntry adds a journal entry document for the owner.
func (m *MongoStore) AddJournalEntry(ctx context.Context, ownerID string, entry *models.JournalEntry) (*models.JournalEntry, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	entry.ID = primitive.NewObjectID().Hex()
	entry.UserID = ownerID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	collection := m.client.Database(m.dbName).Collection("journal_entries")
	_, err := collection.InsertOne(ctx, entry)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListJournalEntries returns the owner's journal entries, newest first.
func (m *MongoStore) ListJournalEntries(ctx context.Context, ownerID string, limit int) ([]models.JournalEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	collection := m.client.Database(m.dbName).Collection("journal_entries")
	cursor, err := collection.Find(ctx, bson.M{"user_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.JournalEntry
	for cursor.Next(ctx) {
		var entry models.JournalEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, cursor.Err()
}
