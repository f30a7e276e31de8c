package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionName is the metadata store collection holding submissions.
const CollectionName = "submissions"

var (
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrDuplicateSubmission is returned by Insert when a unique index on
	// (problem, lang, etag) rejects the write. The transaction-scoped
	// duplicate check is the primary guard; an index conflict maps to the
	// same outcome.
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// Status is the lifecycle state of a submission. It starts at SUB and is
// advanced by the external judge.
type Status string

const (
	StatusSubmitted   Status = "SUB"
	StatusCompiling   Status = "COMP"
	StatusAccepted    Status = "AC"
	StatusWrongAnswer Status = "WA"
	StatusTimeLimit   Status = "TLE"
	StatusError       Status = "ERR"
)

// Submission is one recorded code submission. A record exists only after its
// backing object is durably written and the (problem, lang, etag) triple
// passed the uniqueness check at commit time.
type Submission struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Problem primitive.ObjectID `bson:"problem" json:"problem"`
	Lang    string             `bson:"lang" json:"lang"`
	Object  string             `bson:"object" json:"object"`
	ETag    string             `bson:"etag" json:"etag"`
	Status  Status             `bson:"status" json:"status"`
}

// SubmissionRepository defines submission persistence interfaces. The ctx
// passed to FindDuplicate and Insert may carry a session so both run inside
// one transaction.
type SubmissionRepository interface {
	// FindDuplicate looks up a submission matching (problem, lang, etag).
	// It returns (nil, nil) when no such record exists.
	FindDuplicate(ctx context.Context, problem primitive.ObjectID, lang, etag string) (*Submission, error)

	// Insert stores a new submission record and returns its assigned id.
	Insert(ctx context.Context, submission *Submission) (primitive.ObjectID, error)

	// GetByID retrieves a submission by id.
	GetByID(ctx context.Context, id primitive.ObjectID) (*Submission, error)
}

// MongoSubmissionRepository implements SubmissionRepository with MongoDB.
type MongoSubmissionRepository struct {
	coll *mongo.Collection
}

// NewMongoSubmissionRepository creates a submission repository over the given database.
func NewMongoSubmissionRepository(db *mongo.Database) *MongoSubmissionRepository {
	return &MongoSubmissionRepository{coll: db.Collection(CollectionName)}
}

func (r *MongoSubmissionRepository) FindDuplicate(ctx context.Context, problem primitive.ObjectID, lang, etag string) (*Submission, error) {
	filter := bson.M{
		"problem": problem,
		"lang":    lang,
		"etag":    etag,
	}
	submission := &Submission{}
	if err := r.coll.FindOne(ctx, filter).Decode(submission); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return submission, nil
}

func (r *MongoSubmissionRepository) Insert(ctx context.Context, submission *Submission) (primitive.ObjectID, error) {
	if submission == nil {
		return primitive.NilObjectID, errors.New("submission is nil")
	}
	if submission.Problem.IsZero() {
		return primitive.NilObjectID, errors.New("problem id is required")
	}
	if submission.Lang == "" {
		return primitive.NilObjectID, errors.New("lang is required")
	}
	if submission.Object == "" {
		return primitive.NilObjectID, errors.New("object name is required")
	}
	if submission.ETag == "" {
		return primitive.NilObjectID, errors.New("etag is required")
	}

	result, err := r.coll.InsertOne(ctx, submission)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, ErrDuplicateSubmission
		}
		return primitive.NilObjectID, err
	}
	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("unexpected inserted id type")
	}
	return id, nil
}

func (r *MongoSubmissionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*Submission, error) {
	submission := &Submission{}
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(submission); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}
