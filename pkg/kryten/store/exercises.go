package store

import (
	"fmt"
	"strings"
)

// ExerciseRecord is one logged exercise.
type ExerciseRecord struct {
	ID       int64
	UserID   int64
	Username string
	Exercise string
	Count    float64
	Unit     string
	Notes    string
}

// StatRow is one aggregated line of a stats query.
type StatRow struct {
	FirstName string
	Exercise  string
	Unit      string
	Total     float64
	Sessions  int
	Photos    int
}

// PhotoRecord is one recorded proof photo, with its owner and exercise.
type PhotoRecord struct {
	FileID    string
	FirstName string
	Exercise  string
	Count     float64
	Unit      string
	Notes     string
}

// LogExercise records one exercise and returns its row ID. Exercise name
// and unit are normalized to lower case.
func (s *Store) LogExercise(userID int64, username, exercise string, count float64, unit, notes string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO exercises (user_id, username, exercise, count, unit, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, username, strings.ToLower(strings.TrimSpace(exercise)), count,
		strings.ToLower(strings.TrimSpace(unit)), notes)
	if err != nil {
		return 0, fmt.Errorf("log exercise: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log exercise id: %w", err)
	}
	return id, nil
}

// AddExercisePhoto attaches a photo to a logged exercise.
func (s *Store) AddExercisePhoto(exerciseID int64, fileID, localPath string) error {
	_, err := s.db.Exec(`
		INSERT INTO exercise_photos (exercise_id, file_id, local_path)
		VALUES (?, ?, ?)
	`, exerciseID, fileID, localPath)
	if err != nil {
		return fmt.Errorf("add exercise photo: %w", err)
	}
	return nil
}

// Stats aggregates exercise totals over the trailing days window.
// userID 0 means everyone.
func (s *Store) Stats(days int, userID int64) ([]StatRow, error) {
	query := `
		SELECT COALESCE(u.first_name, e.username, 'Unknown') AS name,
		       e.exercise, e.unit,
		       SUM(e.count) AS total,
		       COUNT(DISTINCT e.id) AS sessions,
		       COUNT(DISTINCT ep.id) AS photos
		FROM exercises e
		LEFT JOIN users u ON u.user_id = e.user_id
		LEFT JOIN exercise_photos ep ON ep.exercise_id = e.id
		WHERE e.recorded_date >= date('now', ?||' days')
	`
	args := []any{-days + 1}
	if userID != 0 {
		query += " AND e.user_id = ?"
		args = append(args, userID)
	}
	query += `
		GROUP BY name, e.exercise, e.unit
		ORDER BY name, total DESC
	`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []StatRow
	for rows.Next() {
		var r StatRow
		if err := rows.Scan(&r.FirstName, &r.Exercise, &r.Unit, &r.Total, &r.Sessions, &r.Photos); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PhotosForDate returns the photos recorded on a YYYY-MM-DD date,
// deduplicated by file ID. When the same photo backs several records the
// owner names are merged.
func (s *Store) PhotosForDate(date string) ([]PhotoRecord, error) {
	rows, err := s.db.Query(`
		SELECT ep.file_id,
		       COALESCE(u.first_name, e.username, 'Unknown') AS name,
		       e.exercise, e.count, e.unit, COALESCE(e.notes, '')
		FROM exercise_photos ep
		JOIN exercises e ON e.id = ep.exercise_id
		LEFT JOIN users u ON u.user_id = e.user_id
		WHERE e.recorded_date = ?
		ORDER BY ep.created_at
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query photos for %s: %w", date, err)
	}
	defer rows.Close()

	var out []PhotoRecord
	byFile := make(map[string]int)
	for rows.Next() {
		var p PhotoRecord
		if err := rows.Scan(&p.FileID, &p.FirstName, &p.Exercise, &p.Count, &p.Unit, &p.Notes); err != nil {
			return nil, fmt.Errorf("scan photo row: %w", err)
		}
		if i, ok := byFile[p.FileID]; ok {
			if !strings.Contains(out[i].FirstName, p.FirstName) {
				out[i].FirstName += " & " + p.FirstName
			}
			continue
		}
		byFile[p.FileID] = len(out)
		out = append(out, p)
	}
	return out, rows.Err()
}
