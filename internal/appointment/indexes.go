package appointment

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the compound indexes backing every named query
// pattern. Each pattern maps to exactly one index; ad-hoc queries that
// would scan the full collection are not part of the store contract.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(CollectionName)

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "appointment_id", Value: 1}},
			Options: options.Index().SetName("uniq_appointment_id").SetUnique(true),
		},
		{
			// Slot exclusivity: only non-terminal documents hold their
			// slot, so the unique constraint is partial on status.
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "appointment_date", Value: 1},
				{Key: "appointment_time.start", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_doctor_slot_active").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": NonTerminalStatuses},
				}),
		},
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "appointment_date", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("doctor_daily_schedule"),
		},
		{
			Keys: bson.D{
				{Key: "patient_id", Value: 1},
				{Key: "appointment_date", Value: -1},
			},
			Options: options.Index().SetName("patient_history"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "appointment_date", Value: 1},
			},
			Options: options.Index().SetName("operational_queue"),
		},
		{
			Keys: bson.D{
				{Key: "consultation_reason.urgency_level", Value: 1},
				{Key: "appointment_date", Value: 1},
			},
			Options: options.Index().SetName("urgent_case_queue"),
		},
		{
			Keys: bson.D{
				{Key: "specialty", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("specialty_routing"),
		},
		{
			Keys: bson.D{
				{Key: "patient_info.location.district", Value: 1},
				{Key: "appointment_date", Value: 1},
			},
			Options: options.Index().SetName("district_reporting"),
		},
	}

	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create appointment indexes: %w", err)
	}
	return nil
}
