package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intuneget/internal/autoupdate/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the MongoDB implementation of Store
type Repository struct {
	policies *mongo.Collection
	history  *mongo.Collection
	jobs     *mongo.Collection
	consent  *mongo.Collection
}

// NewRepository creates a new repository instance
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		policies: db.Collection(models.PoliciesCollection),
		history:  db.Collection(models.HistoryCollection),
		jobs:     db.Collection(models.PackagingJobsCollection),
		consent:  db.Collection(models.TenantConsentCollection),
	}
}

// CreatePolicy inserts a policy; one policy per user and package
func (r *Repository) CreatePolicy(ctx context.Context, policy *models.AppUpdatePolicy) error {
	if _, err := r.policies.InsertOne(ctx, policy); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrPolicyExists
		}
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (r *Repository) GetPolicy(ctx context.Context, id string) (*models.AppUpdatePolicy, error) {
	var policy models.AppUpdatePolicy
	err := r.policies.FindOne(ctx, bson.M{"_id": id}).Decode(&policy)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &policy, nil
}

func (r *Repository) ListPolicies(ctx context.Context, filter models.PolicyFilter) ([]models.AppUpdatePolicy, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.TenantID != "" {
		query["tenant_id"] = filter.TenantID
	}
	if filter.WingetID != "" {
		query["winget_id"] = filter.WingetID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.findPolicies(ctx, query, opts)
}

func (r *Repository) FindEligiblePolicies(ctx context.Context, userID, tenantID string, maxFailures int) ([]models.AppUpdatePolicy, error) {
	query := bson.M{
		"policy_type":          models.PolicyTypeAutoUpdate,
		"is_enabled":           true,
		"consecutive_failures": bson.M{"$lt": maxFailures},
	}
	if userID != "" {
		query["user_id"] = userID
	}
	if tenantID != "" {
		query["tenant_id"] = tenantID
	}

	return r.findPolicies(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *Repository) findPolicies(ctx context.Context, query bson.M, opts *options.FindOptions) ([]models.AppUpdatePolicy, error) {
	cursor, err := r.policies.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find policies: %w", err)
	}
	defer cursor.Close(ctx)

	policies := []models.AppUpdatePolicy{}
	if err := cursor.All(ctx, &policies); err != nil {
		return nil, fmt.Errorf("failed to decode policies: %w", err)
	}
	return policies, nil
}

func (r *Repository) UpdatePolicy(ctx context.Context, id string, patch models.PolicyPatch, now time.Time) (*models.AppUpdatePolicy, error) {
	set := bson.M{"updated_at": now}
	if patch.PolicyType != nil {
		set["policy_type"] = *patch.PolicyType
	}
	if patch.IsEnabled != nil {
		set["is_enabled"] = *patch.IsEnabled
	}
	if patch.DeploymentConfig != nil {
		set["deployment_config"] = patch.DeploymentConfig
	}
	if patch.OriginalUploadHistoryID != nil {
		set["original_upload_history_id"] = *patch.OriginalUploadHistoryID
	}

	update := bson.M{"$set": set}
	if patch.ResetFailures {
		set["consecutive_failures"] = 0
		update["$unset"] = bson.M{"in_flight_until": ""}
	}

	var policy models.AppUpdatePolicy
	err := r.policies.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&policy)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *Repository) ClaimPolicy(ctx context.Context, id string, expectedFailures int, now, until time.Time) (bool, error) {
	filter := bson.M{
		"_id":                  id,
		"consecutive_failures": expectedFailures,
		"$or": bson.A{
			bson.M{"in_flight_until": nil},
			bson.M{"in_flight_until": bson.M{"$lte": now}},
		},
	}
	result, err := r.policies.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"in_flight_until": until}})
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 1, nil
}

func (r *Repository) RecordPolicySuccess(ctx context.Context, id, version string, at time.Time) error {
	result, err := r.policies.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"last_auto_update_at":      at,
			"last_auto_update_version": version,
			"consecutive_failures":     0,
			"updated_at":               at,
		},
		"$unset": bson.M{"in_flight_until": ""},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func (r *Repository) IncrementPolicyFailures(ctx context.Context, id string, now time.Time) (int, error) {
	var policy models.AppUpdatePolicy
	err := r.policies.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{
			"$inc":   bson.M{"consecutive_failures": 1},
			"$set":   bson.M{"updated_at": now},
			"$unset": bson.M{"in_flight_until": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&policy)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrPolicyNotFound
		}
		return 0, err
	}
	return policy.ConsecutiveFailures, nil
}

func (r *Repository) DisablePolicy(ctx context.Context, id string, now time.Time) error {
	result, err := r.policies.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_enabled": false, "updated_at": now}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func (r *Repository) InsertHistory(ctx context.Context, history *models.AutoUpdateHistory) error {
	_, err := r.history.InsertOne(ctx, history)
	return err
}

func (r *Repository) GetHistory(ctx context.Context, id string) (*models.AutoUpdateHistory, error) {
	var history models.AutoUpdateHistory
	err := r.history.FindOne(ctx, bson.M{"_id": id}).Decode(&history)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &history, nil
}

func (r *Repository) ListHistory(ctx context.Context, policyID string, limit int) ([]models.AutoUpdateHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "triggered_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.history.Find(ctx, bson.M{"policy_id": policyID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find history: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.AutoUpdateHistory{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return records, nil
}

func (r *Repository) AttachPackagingJob(ctx context.Context, historyID, jobID string) error {
	result, err := r.history.UpdateOne(ctx,
		bson.M{"_id": historyID, "status": models.HistoryStatusPending},
		bson.M{"$set": bson.M{"packaging_job_id": jobID, "status": models.HistoryStatusPackaging}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.missingOrFinished(ctx, historyID)
	}
	return nil
}

func (r *Repository) TransitionHistory(ctx context.Context, id string, transition models.HistoryTransition) error {
	set := bson.M{
		"status":       transition.Status,
		"completed_at": transition.CompletedAt,
	}
	if transition.ErrorMessage != "" {
		set["error_message"] = transition.ErrorMessage
	}

	result, err := r.history.UpdateOne(ctx,
		bson.M{
			"_id":    id,
			"status": bson.M{"$in": bson.A{models.HistoryStatusPending, models.HistoryStatusPackaging}},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update history: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.missingOrFinished(ctx, id)
	}
	return nil
}

// missingOrFinished explains why a conditional history update matched nothing
func (r *Repository) missingOrFinished(ctx context.Context, id string) error {
	count, err := r.history.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrHistoryNotFound
	}
	return ErrInvalidTransition
}

func (r *Repository) CountCompletedForTenantSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	return r.history.CountDocuments(ctx, bson.M{
		"tenant_id":    tenantID,
		"status":       models.HistoryStatusCompleted,
		"triggered_at": bson.M{"$gte": since},
	})
}

func (r *Repository) CountForUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return r.history.CountDocuments(ctx, bson.M{
		"user_id":      userID,
		"triggered_at": bson.M{"$gte": since},
	})
}

func (r *Repository) LatestTriggeredAt(ctx context.Context) (*time.Time, error) {
	var latest struct {
		TriggeredAt time.Time `bson:"triggered_at"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "triggered_at", Value: -1}}).
		SetProjection(bson.M{"triggered_at": 1})

	err := r.history.FindOne(ctx, bson.M{}, opts).Decode(&latest)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &latest.TriggeredAt, nil
}

func (r *Repository) InsertPackagingJob(ctx context.Context, job *models.PackagingJob) error {
	_, err := r.jobs.InsertOne(ctx, job)
	return err
}

func (r *Repository) GetTenantConsent(ctx context.Context, tenantID string) (*models.TenantConsent, error) {
	var consent models.TenantConsent
	err := r.consent.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&consent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to get tenant consent: %w", err)
	}
	return &consent, nil
}

// HealthCheck pings the policies collection
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.policies.Database().Client().Ping(ctx, nil)
}

var _ Store = (*Repository)(nil)
