package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// Collection names of the document store
const (
	PatientsCollection = "patients"
	VisitsCollection   = "visits"
)

// MongoPatientAdapter implements PatientRepository on a MongoDB collection
type MongoPatientAdapter struct {
	collection *mongo.Collection
}

// NewMongoPatientAdapter creates a new MongoDB patient adapter
func NewMongoPatientAdapter(db *mongo.Database) *MongoPatientAdapter {
	return &MongoPatientAdapter{collection: db.Collection(PatientsCollection)}
}

// EnsureIndexes creates the identity index on the patients collection and
// the lookup index on visits
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(PatientsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: repositories.FieldMRN, Value: 1},
			{Key: repositories.FieldArrivalTimestamp, Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("patient_identity"),
	})
	if err != nil {
		return apperrors.NewInternalError("failed to create patient index", err)
	}

	_, err = db.Collection(VisitsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: repositories.FieldMRN, Value: 1}},
		Options: options.Index().SetName("visit_mrn"),
	})
	if err != nil {
		return apperrors.NewInternalError("failed to create visit index", err)
	}
	return nil
}

// Insert stores a new registration
func (a *MongoPatientAdapter) Insert(ctx context.Context, patient *entities.PatientRegistration) error {
	if err := patient.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	if _, err := a.collection.InsertOne(ctx, patient); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.NewConflictError(fmt.Sprintf("registration %s already exists", patient.Key()))
		}
		return apperrors.NewInternalError("failed to insert registration", err)
	}
	return nil
}

// FindAll returns every registration matching filter in insertion order
func (a *MongoPatientAdapter) FindAll(ctx context.Context, filter repositories.Filter) ([]*entities.PatientRegistration, error) {
	cursor, err := a.collection.Find(ctx, toBSON(filter), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query registrations", err)
	}

	var patients []*entities.PatientRegistration
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, apperrors.NewInternalError("failed to decode registrations", err)
	}
	return patients, nil
}

// FindOne returns the first match, or nil
func (a *MongoPatientAdapter) FindOne(ctx context.Context, filter repositories.Filter) (*entities.PatientRegistration, error) {
	var patient entities.PatientRegistration
	err := a.collection.FindOne(ctx, toBSON(filter)).Decode(&patient)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get registration", err)
	}
	return &patient, nil
}

// UpdateOne applies patch to the first match
func (a *MongoPatientAdapter) UpdateOne(ctx context.Context, filter repositories.Filter, patch repositories.Patch) (int64, error) {
	set := bson.M{}
	for field, value := range patch {
		if !isPatchable(field) {
			return 0, apperrors.NewValidationError(fmt.Sprintf("field %s cannot be patched", field))
		}
		set[field] = normalise(value)
	}

	result, err := a.collection.UpdateOne(ctx, toBSON(filter), bson.M{"$set": set})
	if err != nil {
		return 0, apperrors.NewInternalError("failed to update registration", err)
	}
	return result.MatchedCount, nil
}

// DeleteOne removes the first match
func (a *MongoPatientAdapter) DeleteOne(ctx context.Context, filter repositories.Filter) error {
	if _, err := a.collection.DeleteOne(ctx, toBSON(filter)); err != nil {
		return apperrors.NewInternalError("failed to delete registration", err)
	}
	return nil
}

// Count returns the number of matches
func (a *MongoPatientAdapter) Count(ctx context.Context, filter repositories.Filter) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, apperrors.NewInternalError("failed to count registrations", err)
	}
	return n, nil
}

// MongoVisitAdapter implements VisitRepository on a MongoDB collection
type MongoVisitAdapter struct {
	collection *mongo.Collection
}

// NewMongoVisitAdapter creates a new MongoDB visit adapter
func NewMongoVisitAdapter(db *mongo.Database) *MongoVisitAdapter {
	return &MongoVisitAdapter{collection: db.Collection(VisitsCollection)}
}

// Insert appends a visit record
func (a *MongoVisitAdapter) Insert(ctx context.Context, visit *entities.VisitRecord) error {
	if _, err := a.collection.InsertOne(ctx, visit); err != nil {
		return apperrors.NewInternalError("failed to insert visit", err)
	}
	return nil
}

// FindAll returns every visit matching filter in insertion order
func (a *MongoVisitAdapter) FindAll(ctx context.Context, filter repositories.Filter) ([]*entities.VisitRecord, error) {
	cursor, err := a.collection.Find(ctx, toBSON(filter), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query visits", err)
	}

	var visits []*entities.VisitRecord
	if err := cursor.All(ctx, &visits); err != nil {
		return nil, apperrors.NewInternalError("failed to decode visits", err)
	}
	return visits, nil
}

// DeleteOne removes the first match
func (a *MongoVisitAdapter) DeleteOne(ctx context.Context, filter repositories.Filter) error {
	if _, err := a.collection.DeleteOne(ctx, toBSON(filter)); err != nil {
		return apperrors.NewInternalError("failed to delete visit", err)
	}
	return nil
}

// Count returns the number of matches
func (a *MongoVisitAdapter) Count(ctx context.Context, filter repositories.Filter) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, apperrors.NewInternalError("failed to count visits", err)
	}
	return n, nil
}

// toBSON maps a field-equality filter onto a query document. An empty
// string also matches documents written before the field existed.
func toBSON(filter repositories.Filter) bson.M {
	doc := bson.M{}
	for field, value := range filter {
		value = normalise(value)
		if s, ok := value.(string); ok && s == "" {
			doc[field] = bson.M{"$in": bson.A{"", nil}}
			continue
		}
		doc[field] = value
	}
	return doc
}
