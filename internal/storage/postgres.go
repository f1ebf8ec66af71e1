package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/presensi/internal/config"
	"github.com/your-org/presensi/internal/models"
)

var (
	ErrNotFound         = models.ErrNotFound
	ErrDuplicateCheckIn = models.ErrDuplicateCheckIn
	ErrEmailTaken       = errors.New("email already registered")
)

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
	// descriptor length every stored face must have
	dim int
}

func NewPostgresStore(cfg config.DatabaseConfig, descriptorDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dim: descriptorDim}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func descriptorParam(d []float32) *pgvector.Vector {
	if len(d) == 0 {
		return nil
	}
	v := pgvector.NewVector(d)
	return &v
}

// --- Users ---

const userColumns = `id, full_name, email, password_hash, role, avatar_key, avatar_url, face_descriptor, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	var vec *pgvector.Vector
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role,
		&u.AvatarKey, &u.AvatarURL, &vec, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if vec != nil {
		u.Descriptor = vec.Slice()
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if len(u.Descriptor) > 0 && len(u.Descriptor) != s.dim {
		return fmt.Errorf("create user: descriptor has length %d, want %d", len(u.Descriptor), s.dim)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = models.RoleStudent
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, role, avatar_key, avatar_url, face_descriptor)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.Role, u.AvatarKey, u.AvatarURL, descriptorParam(u.Descriptor),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateFace replaces a user's descriptor and avatar.
func (s *PostgresStore) UpdateFace(ctx context.Context, id uuid.UUID, descriptor []float32, avatarKey, avatarURL string) error {
	if len(descriptor) != s.dim {
		return fmt.Errorf("update face: descriptor has length %d, want %d", len(descriptor), s.dim)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET face_descriptor = $1, avatar_key = $2, avatar_url = $3, updated_at = NOW() WHERE id = $4`,
		descriptorParam(descriptor), avatarKey, avatarURL, id)
	if err != nil {
		return fmt.Errorf("update face: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadRoster returns the enrolled identities in name order. An empty
// personID loads everyone. A personID that is not a uuid is a
// ValidationError and an unknown one is ErrNotFound. A row with a malformed
// descriptor fails the whole load.
func (s *PostgresStore) LoadRoster(ctx context.Context, personID string) ([]models.RosterEntry, error) {
	query := `SELECT id, full_name, face_descriptor, avatar_url FROM users`
	var args []any
	if personID != "" {
		id, err := uuid.Parse(personID)
		if err != nil {
			return nil, &models.ValidationError{Entity: "roster", Field: "person_id", Reason: "is not a uuid"}
		}
		query += ` WHERE id = $1`
		args = append(args, id)
	}
	query += ` ORDER BY full_name, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()

	var roster []models.RosterEntry
	for rows.Next() {
		var (
			id        uuid.UUID
			name      string
			vec       *pgvector.Vector
			avatarURL string
		)
		if err := rows.Scan(&id, &name, &vec, &avatarURL); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		var descriptor []float32
		if vec != nil {
			descriptor = vec.Slice()
		}
		entry, err := models.NewRosterEntry(id.String(), name, descriptor, avatarURL, s.dim)
		if err != nil {
			return nil, fmt.Errorf("roster row %s: %w", id, err)
		}
		roster = append(roster, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if personID != "" && len(roster) == 0 {
		return nil, ErrNotFound
	}
	return roster, nil
}

// --- Geofence ---

func (s *PostgresStore) GetGeofence(ctx context.Context) (models.GeofenceConfig, error) {
	var (
		lat, lon, radius float64
		updated          time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude, radius_meters, updated_at FROM radius_settings WHERE id = 1`,
	).Scan(&lat, &lon, &radius, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GeofenceConfig{}, ErrNotFound
		}
		return models.GeofenceConfig{}, fmt.Errorf("get geofence: %w", err)
	}
	cfg, err := models.NewGeofenceConfig(lat, lon, radius)
	if err != nil {
		return models.GeofenceConfig{}, fmt.Errorf("get geofence: %w", err)
	}
	cfg.ID = 1
	cfg.UpdatedAt = updated
	return cfg, nil
}

// SaveGeofence replaces the single geofence row.
func (s *PostgresStore) SaveGeofence(ctx context.Context, cfg models.GeofenceConfig) (models.GeofenceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return models.GeofenceConfig{}, err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO radius_settings (id, latitude, longitude, radius_meters, updated_at)
		 VALUES (1, $1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
		     radius_meters = EXCLUDED.radius_meters, updated_at = EXCLUDED.updated_at
		 RETURNING updated_at`,
		cfg.Center.Lat, cfg.Center.Lon, cfg.RadiusMeters,
	).Scan(&cfg.UpdatedAt)
	if err != nil {
		return models.GeofenceConfig{}, fmt.Errorf("save geofence: %w", err)
	}
	cfg.ID = 1
	return cfg, nil
}

// --- Check-ins ---

func (s *PostgresStore) CreateCheckIn(ctx context.Context, rec *models.CheckInRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	date, _ := models.ParseCheckInDate(rec.Date)
	person, err := uuid.Parse(rec.PersonID)
	if err != nil {
		return fmt.Errorf("create check-in: person id %q: %w", rec.PersonID, err)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO absensi (id, user_id, nama, tanggal, tipe_absen, foto_url, foto_key, lokasi, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, person, rec.Name, date, string(rec.Label), rec.PhotoURL, rec.PhotoKey, rec.Location, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCheckIn
		}
		return fmt.Errorf("create check-in: %w", err)
	}
	return nil
}

// CheckInFilter narrows ListCheckIns. Zero fields match everything.
type CheckInFilter struct {
	Date     string
	PersonID string
	Label    models.SessionLabel
	Limit    int
	Offset   int
}

const checkInColumns = `id, user_id, nama, tanggal, tipe_absen, foto_url, foto_key, lokasi, created_at`

func scanCheckIn(row pgx.Row) (*models.CheckInRecord, error) {
	var (
		rec    models.CheckInRecord
		person uuid.UUID
		date   time.Time
		label  string
	)
	if err := row.Scan(&rec.ID, &person, &rec.Name, &date, &label,
		&rec.PhotoURL, &rec.PhotoKey, &rec.Location, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.PersonID = person.String()
	rec.Date = date.Format(models.DateLayout)
	rec.Label = models.SessionLabel(label)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCheckIns returns a page of records, newest first, and the total count.
func (s *PostgresStore) ListCheckIns(ctx context.Context, f CheckInFilter) ([]models.CheckInRecord, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}

	where := "WHERE TRUE"
	var args []any
	argIdx := 1

	if f.Date != "" {
		date, err := models.ParseCheckInDate(f.Date)
		if err != nil {
			return nil, 0, err
		}
		where += fmt.Sprintf(" AND tanggal = $%d", argIdx)
		args = append(args, date)
		argIdx++
	}
	if f.PersonID != "" {
		id, err := uuid.Parse(f.PersonID)
		if err != nil {
			return nil, 0, nil
		}
		where += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, id)
		argIdx++
	}
	if f.Label != "" {
		where += fmt.Sprintf(" AND tipe_absen = $%d", argIdx)
		args = append(args, string(f.Label))
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM absensi "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count check-ins: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM absensi %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		checkInColumns, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var records []models.CheckInRecord
	for rows.Next() {
		rec, err := scanCheckIn(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan check-in: %w", err)
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

func (s *PostgresStore) GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInRecord, error) {
	rec, err := scanCheckIn(s.pool.QueryRow(ctx, `SELECT `+checkInColumns+` FROM absensi WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	return rec, nil
}

// DayStatus reports which sessions personID has recorded on date.
func (s *PostgresStore) DayStatus(ctx context.Context, personID uuid.UUID, date string) (models.DayStatus, error) {
	day, err := models.ParseCheckInDate(date)
	if err != nil {
		return models.DayStatus{}, err
	}
	status := models.DayStatus{
		PersonID: personID.String(),
		Date:     date,
		Recorded: make(map[models.SessionLabel]*time.Time, len(models.Labels)),
	}
	for _, l := range models.Labels {
		status.Recorded[l] = nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tipe_absen, created_at FROM absensi WHERE user_id = $1 AND tanggal = $2`, personID, day)
	if err != nil {
		return models.DayStatus{}, fmt.Errorf("day status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			label string
			at    time.Time
		)
		if err := rows.Scan(&label, &at); err != nil {
			return models.DayStatus{}, fmt.Errorf("scan day status: %w", err)
		}
		l, err := models.ParseSessionLabel(label)
		if err != nil {
			return models.DayStatus{}, err
		}
		status.Recorded[l] = &at
	}
	return status, rows.Err()
}
