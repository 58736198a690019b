package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"van-dispatch/internal/database"
	"van-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pq код нарушения уникальности
const uniqueViolation = "23505"

// Postgres хранилище поверх database.DB (lib/pq)
type Postgres struct {
	db *database.DB
}

// NewPostgres создает хранилище Postgres
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

const serviceRequestColumns = `id, customer_name, address, city, lat, lon, service_type, tier,
	preferred_date, duration_minutes, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServiceRequest(row rowScanner) (models.ServiceRequest, error) {
	var r models.ServiceRequest
	err := row.Scan(&r.ID, &r.CustomerName, &r.Address, &r.City, &r.Lat, &r.Lon, &r.ServiceType, &r.Tier,
		&r.PreferredDate, &r.DurationMinutes, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// UpsertServiceRequest создает заявку или обновляет ее, пока она ожидает планирования
func (p *Postgres) UpsertServiceRequest(ctx context.Context, req *models.ServiceRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}

	query := `
		INSERT INTO service_requests (id, customer_name, address, city, lat, lon, service_type, tier,
			preferred_date, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			service_type = EXCLUDED.service_type,
			tier = EXCLUDED.tier,
			preferred_date = EXCLUDED.preferred_date,
			duration_minutes = EXCLUDED.duration_minutes,
			updated_at = NOW()
		WHERE service_requests.status = 'pending'
		RETURNING created_at, updated_at`

	err := p.db.QueryRowContext(ctx, query,
		req.ID, req.CustomerName, req.Address, req.City, req.Lat, req.Lon, req.ServiceType, req.Tier,
		req.PreferredDate.Format(models.DateLayout), req.DurationMinutes, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Строка есть, но уже не pending: WHERE в DO UPDATE ничего не вернул
		return fmt.Errorf("service request %s is no longer pending: %w", req.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert service request: %w", err)
	}
	return nil
}

func (p *Postgres) GetServiceRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+serviceRequestColumns+` FROM service_requests WHERE id = $1`, id)
	r, err := scanServiceRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service request: %w", err)
	}
	return &r, nil
}

func (p *Postgres) ListServiceRequests(ctx context.Context, status models.RequestStatus) ([]models.ServiceRequest, error) {
	query := `SELECT ` + serviceRequestColumns + ` FROM service_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY preferred_date, created_at, id`

	rows, err := p.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	defer rows.Close()

	var out []models.ServiceRequest
	for rows.Next() {
		r, err := scanServiceRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CancelServiceRequest(ctx context.Context, id uuid.UUID) error {
	var status models.RequestStatus
	err := p.db.QueryRowContext(ctx, `SELECT status FROM service_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get service request status: %w", err)
	}
	if status == models.RequestStatusCompleted {
		return fmt.Errorf("service request %s already completed: %w", id, ErrConflict)
	}

	_, err = p.db.ExecContext(ctx,
		`UPDATE service_requests SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> 'completed'`,
		id, models.RequestStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel service request: %w", err)
	}
	return nil
}

const vanColumns = `v.id, v.van_number, v.van_name, v.zone, v.status, v.depot_lat, v.depot_lon, v.created_at, v.updated_at`

func scanVan(row rowScanner, extra ...interface{}) (models.Van, error) {
	var v models.Van
	dest := append([]interface{}{&v.ID, &v.VanNumber, &v.VanName, &v.Zone, &v.Status,
		&v.DepotLat, &v.DepotLon, &v.CreatedAt, &v.UpdatedAt}, extra...)
	err := row.Scan(dest...)
	return v, err
}

func (p *Postgres) CreateVan(ctx context.Context, van *models.Van) error {
	if van.ID == uuid.Nil {
		van.ID = uuid.New()
	}
	if van.Status == "" {
		van.Status = models.VanStatusActive
	}

	query := `
		INSERT INTO vans (id, van_number, van_name, zone, status, depot_lat, depot_lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := p.db.QueryRowContext(ctx, query,
		van.ID, van.VanNumber, van.VanName, van.Zone, van.Status, van.DepotLat, van.DepotLon,
	).Scan(&van.CreatedAt, &van.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("van number %s already exists: %w", van.VanNumber, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create van: %w", err)
	}
	return nil
}

func (p *Postgres) GetVan(ctx context.Context, id uuid.UUID) (*models.Van, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+vanColumns+` FROM vans v WHERE v.id = $1`, id)
	v, err := scanVan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get van: %w", err)
	}
	return &v, nil
}

func (p *Postgres) ListVans(ctx context.Context) ([]models.Van, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+vanColumns+` FROM vans v ORDER BY v.van_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vans: %w", err)
	}
	defer rows.Close()

	var out []models.Van
	for rows.Next() {
		v, err := scanVan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan van: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListVansForDate возвращает не списанные фургоны со сводкой расписания на дату
func (p *Postgres) ListVansForDate(ctx context.Context, date string) ([]models.Van, error) {
	query := `
		SELECT ` + vanColumns + `, s.id, s.status, s.start_time, s.end_time,
			(SELECT COUNT(*) FROM route_assignments ra WHERE ra.schedule_id = s.id)
		FROM vans v
		LEFT JOIN LATERAL (
			SELECT id, status, start_time, end_time
			FROM van_schedules
			WHERE van_id = v.id AND schedule_date = $1
			ORDER BY (status = 'cancelled'), created_at DESC
			LIMIT 1
		) s ON TRUE
		WHERE v.status <> 'retired'
		ORDER BY v.van_number`

	rows, err := p.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list vans for date: %w", err)
	}
	defer rows.Close()

	var out []models.Van
	for rows.Next() {
		var (
			scheduleID     uuid.NullUUID
			scheduleStatus sql.NullString
			start, end     sql.NullString
			count          sql.NullInt64
		)
		v, err := scanVan(rows, &scheduleID, &scheduleStatus, &start, &end, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan van: %w", err)
		}
		if scheduleID.Valid {
			id := scheduleID.UUID
			status := models.ScheduleStatus(scheduleStatus.String)
			n := int(count.Int64)
			v.ScheduleID = &id
			v.ScheduleStatus = &status
			v.StartTime = &start.String
			v.EndTime = &end.String
			v.AssignmentCount = &n
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateVanStatus(ctx context.Context, id uuid.UUID, status models.VanStatus) (*models.Van, error) {
	query := `UPDATE vans v SET status = $2, updated_at = NOW() WHERE v.id = $1 RETURNING ` + vanColumns
	v, err := scanVan(p.db.QueryRowContext(ctx, query, id, status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update van status: %w", err)
	}
	return &v, nil
}

const scheduleColumns = `s.id, s.van_id, v.van_number, v.van_name, to_char(s.schedule_date, 'YYYY-MM-DD'),
	s.status, s.start_time, s.end_time, s.created_at, s.updated_at`

func scanSchedule(row rowScanner) (models.VanSchedule, error) {
	var s models.VanSchedule
	err := row.Scan(&s.ID, &s.VanID, &s.VanNumber, &s.VanName, &s.ScheduleDate,
		&s.Status, &s.StartTime, &s.EndTime, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (p *Postgres) ListSchedules(ctx context.Context, fromDate, toDate string) ([]models.VanSchedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM van_schedules s JOIN vans v ON v.id = s.van_id
		WHERE s.schedule_date BETWEEN $1 AND $2
		ORDER BY s.schedule_date, v.van_number`

	rows, err := p.db.QueryContext(ctx, query, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []models.VanSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSchedule(ctx context.Context, id uuid.UUID) (*models.VanSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM van_schedules s JOIN vans v ON v.id = s.van_id WHERE s.id = $1`
	s, err := scanSchedule(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &s, nil
}

func (p *Postgres) ListAssignments(ctx context.Context, scheduleID uuid.UUID) ([]models.RouteAssignment, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM van_schedules WHERE id = $1)`, scheduleID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check schedule: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	query := `
		SELECT ra.id, ra.schedule_id, ra.service_request_id, ra.route_sequence,
			ra.estimated_arrival_time, ra.estimated_departure_time, ra.urgency_score, ra.distance_from_prev_km,
			sr.customer_name, sr.address, sr.city, sr.service_type, sr.tier
		FROM route_assignments ra
		JOIN service_requests sr ON sr.id = ra.service_request_id
		WHERE ra.schedule_id = $1
		ORDER BY ra.route_sequence`

	rows, err := p.db.QueryContext(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := []models.RouteAssignment{}
	for rows.Next() {
		var a models.RouteAssignment
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.ServiceRequestID, &a.RouteSequence,
			&a.EstimatedArrivalTime, &a.EstimatedDepartureTime, &a.UrgencyScore, &a.DistanceFromPrevKm,
			&a.CustomerName, &a.Address, &a.City, &a.ServiceType, &a.Tier); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveRoutes сохраняет расписания, остановки и переводит заявки в assigned одной транзакцией
func (p *Postgres) SaveRoutes(ctx context.Context, routes []ScheduledRoute) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range routes {
		s := r.Schedule
		err := tx.QueryRowContext(ctx, `
			INSERT INTO van_schedules (id, van_id, schedule_date, status, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`,
			s.ID, s.VanID, s.ScheduleDate, s.Status, s.StartTime, s.EndTime,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("van %s already scheduled on %s: %w", s.VanID, s.ScheduleDate, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}

		for _, a := range r.Assignments {
			res, err := tx.ExecContext(ctx,
				`UPDATE service_requests SET status = 'assigned', updated_at = NOW() WHERE id = $1 AND status = 'pending'`,
				a.ServiceRequestID)
			if err != nil {
				return fmt.Errorf("failed to mark service request assigned: %w", err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("service request %s is not pending: %w", a.ServiceRequestID, ErrConflict)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO route_assignments (id, schedule_id, service_request_id, route_sequence,
					estimated_arrival_time, estimated_departure_time, urgency_score, distance_from_prev_km)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				a.ID, s.ID, a.ServiceRequestID, a.RouteSequence,
				a.EstimatedArrivalTime, a.EstimatedDepartureTime, a.UrgencyScore, a.DistanceFromPrevKm,
			); err != nil {
				return fmt.Errorf("failed to insert route assignment: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit routes: %w", err)
	}
	return nil
}

// SetScheduleStatus меняет статус расписания, если он все еще равен from.
// Отмена возвращает заявки в pending, завершение закрывает их.
func (p *Postgres) SetScheduleStatus(ctx context.Context, id uuid.UUID, from, to models.ScheduleStatus) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE van_schedules SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM van_schedules WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check schedule: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("schedule %s is no longer %s: %w", id, from, ErrConflict)
	}

	var next models.RequestStatus
	switch to {
	case models.ScheduleStatusCancelled:
		next = models.RequestStatusPending
	case models.ScheduleStatusCompleted:
		next = models.RequestStatusCompleted
	}
	if next != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE service_requests SET status = $2, updated_at = NOW()
			WHERE status = 'assigned'
			  AND id IN (SELECT service_request_id FROM route_assignments WHERE schedule_id = $1)`,
			id, next); err != nil {
			return fmt.Errorf("failed to update service requests: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule status: %w", err)
	}
	return nil
}

func (p *Postgres) Health(ctx context.Context) error {
	return p.db.Health(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
