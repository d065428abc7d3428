package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Detection represents a completed still-capture detection stored in the
// database. Latitude and Longitude are optional geolocation fields.
type Detection struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	ObjectCount         int       `json:"object_count"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	SliceCount          int       `json:"slice_count"`
	ImageFilename       string    `json:"image_filename"`
	Latitude            *float64  `json:"latitude"`
	Longitude           *float64  `json:"longitude"`
}

// DetectionRepository provides CRUD operations for detections.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Create inserts a new detection into the database, assigning an ID and
// timestamp if unset.
func (r *DetectionRepository) Create(d *Detection) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	_, err := r.db.Exec(
		`INSERT INTO detections
		 (id, timestamp, object_count, confidence_threshold, slice_count, image_filename, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Timestamp, d.ObjectCount, d.ConfidenceThreshold, d.SliceCount,
		d.ImageFilename, d.Latitude, d.Longitude,
	)
	return err
}

// GetByID retrieves a detection by its ID.
func (r *DetectionRepository) GetByID(id string) (*Detection, error) {
	d := &Detection{}

	err := r.db.QueryRow(
		`SELECT id, timestamp, object_count, confidence_threshold, slice_count, image_filename, latitude, longitude
		 FROM detections WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.Timestamp, &d.ObjectCount, &d.ConfidenceThreshold,
		&d.SliceCount, &d.ImageFilename, &d.Latitude, &d.Longitude)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return d, nil
}

// List returns one page of detections newest-first along with the total
// record count. Pages are 1-based.
func (r *DetectionRepository) List(page, perPage int) ([]*Detection, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(
		`SELECT id, timestamp, object_count, confidence_threshold, slice_count, image_filename, latitude, longitude
		 FROM detections ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var detections []*Detection
	for rows.Next() {
		d := &Detection{}
		err := rows.Scan(&d.ID, &d.Timestamp, &d.ObjectCount, &d.ConfidenceThreshold,
			&d.SliceCount, &d.ImageFilename, &d.Latitude, &d.Longitude)
		if err != nil {
			return nil, 0, err
		}
		detections = append(detections, d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return detections, total, nil
}

// Delete removes a detection from the database by its ID.
func (r *DetectionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM detections WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
