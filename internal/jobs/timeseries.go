package jobs

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceTimeSeries persists the full per-frame sequence for a job in one
// transaction, replacing any previous sequence. Points are stored in frame
// order and never updated afterwards.
func (s *Store) ReplaceTimeSeries(ctx context.Context, jobID int64, points []TimeSeriesPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin time series tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_series WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("clear time series: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO time_series (job_id, frame, timestamp_seconds, hip_y, elbow_y, shoulder_y, bench_detected, bar_detected)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare time series insert: %w", err)
	}
	defer stmt.Close()

	for _, point := range points {
		if _, err := stmt.ExecContext(
			ctx,
			jobID,
			point.Frame,
			point.TimestampSeconds,
			nullableFloat(point.HipY),
			nullableFloat(point.ElbowY),
			nullableFloat(point.ShoulderY),
			boolToInt(point.BenchDetected),
			boolToInt(point.BarDetected),
		); err != nil {
			return fmt.Errorf("insert time series point %d: %w", point.Frame, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit time series: %w", err)
	}
	return nil
}

// TimeSeries returns the persisted per-frame sequence for a job in frame order.
func (s *Store) TimeSeries(ctx context.Context, jobID int64) ([]TimeSeriesPoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT frame, timestamp_seconds, hip_y, elbow_y, shoulder_y, bench_detected, bar_detected
         FROM time_series WHERE job_id = ? ORDER BY frame`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query time series: %w", err)
	}
	defer rows.Close()

	var points []TimeSeriesPoint
	for rows.Next() {
		var (
			point     TimeSeriesPoint
			hipY      sql.NullFloat64
			elbowY    sql.NullFloat64
			shoulderY sql.NullFloat64
			bench     int
			bar       int
		)
		if err := rows.Scan(&point.Frame, &point.TimestampSeconds, &hipY, &elbowY, &shoulderY, &bench, &bar); err != nil {
			return nil, fmt.Errorf("scan time series point: %w", err)
		}
		point.HipY = floatPointer(hipY)
		point.ElbowY = floatPointer(elbowY)
		point.ShoulderY = floatPointer(shoulderY)
		point.BenchDetected = bench != 0
		point.BarDetected = bar != 0
		points = append(points, point)
	}
	return points, rows.Err()
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func floatPointer(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}
