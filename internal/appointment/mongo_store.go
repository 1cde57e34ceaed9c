package appointment

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the appointment collection in the service database.
const CollectionName = "appointments"

// MongoStore persists appointments in MongoDB. Writes use
// compare-and-swap on the version field rather than any in-process
// locking, so multiple service instances can run concurrently.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

func (s *MongoStore) Insert(ctx context.Context, a *Appointment) error {
	taken, err := s.slotTaken(ctx, a.DoctorID, a.AppointmentDate, a.AppointmentTime.Start)
	if err != nil {
		return fmt.Errorf("slot lookup failed: %w", err)
	}
	if taken {
		return ErrSlotConflict
	}

	if _, err := s.coll.InsertOne(ctx, a); err != nil {
		// Two unique indexes can reject the insert: the appointment ID
		// index and the partial slot index that closes the
		// check-then-insert window between concurrent bookings.
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "uniq_appointment_id") {
				return ErrDuplicateID
			}
			return ErrSlotConflict
		}
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func (s *MongoStore) slotTaken(ctx context.Context, doctorID, date, start string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{
		"doctor_id":              doctorID,
		"appointment_date":       date,
		"appointment_time.start": start,
		"status":                 bson.M{"$in": NonTerminalStatuses},
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoStore) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	var a Appointment
	err := s.coll.FindOne(ctx, bson.M{"appointment_id": appointmentID}).Decode(&a)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup failed: %w", err)
	}
	return &a, nil
}

func (s *MongoStore) Update(ctx context.Context, a *Appointment) error {
	replacement := a.Clone()
	replacement.Version = a.Version + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{
		"_id":     a.ID,
		"version": a.Version,
	}, replacement)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a lost race from a missing document.
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": a.ID})
		if err != nil {
			return fmt.Errorf("update verification failed: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	a.Version = replacement.Version
	return nil
}

func (s *MongoStore) DoctorDay(ctx context.Context, doctorID, date string, status Status) ([]*Appointment, error) {
	filter := bson.M{"doctor_id": doctorID, "appointment_date": date}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "appointment_time.start", Value: 1}})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) PatientHistory(ctx context.Context, patientID string, limit int) ([]*Appointment, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "appointment_date", Value: -1},
		{Key: "appointment_time.start", Value: -1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"patient_id": patientID}, opts)
}

func (s *MongoStore) Queue(ctx context.Context, status Status, limit int) ([]*Appointment, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "appointment_date", Value: 1},
		{Key: "appointment_time.start", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"status": status}, opts)
}

func (s *MongoStore) Urgent(ctx context.Context, urgency UrgencyLevel, date string) ([]*Appointment, error) {
	filter := bson.M{"consultation_reason.urgency_level": urgency}
	if date != "" {
		filter["appointment_date"] = date
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "priority_score", Value: -1},
		{Key: "scheduling.booked_at", Value: 1},
	})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) BySpecialty(ctx context.Context, specialty string, status Status) ([]*Appointment, error) {
	filter := bson.M{"specialty": specialty}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "appointment_date", Value: 1},
		{Key: "appointment_time.start", Value: 1},
	})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) ByDistrict(ctx context.Context, district, date string) ([]*Appointment, error) {
	filter := bson.M{"patient_info.location.district": district}
	if date != "" {
		filter["appointment_date"] = date
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "appointment_date", Value: 1},
		{Key: "appointment_time.start", Value: 1},
	})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Appointment, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*Appointment
	for cursor.Next(ctx) {
		var a Appointment
		if err := cursor.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode failed: %w", err)
		}
		results = append(results, &a)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor failed: %w", err)
	}
	return results, nil
}
