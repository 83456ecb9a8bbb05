package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

const (
	patientsTable = "patients"
	visitsTable   = "visits"
)

// Schema creates the relational layout of the patient record store.
// Timestamps are kept as canonical text so legacy values survive unchanged.
const Schema = `
CREATE TABLE IF NOT EXISTS patients (
	mrn                  TEXT NOT NULL,
	name                 TEXT NOT NULL,
	age                  INTEGER NOT NULL DEFAULT 0,
	gender               TEXT NOT NULL DEFAULT '',
	complaint            TEXT NOT NULL DEFAULT '',
	sbp                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	dbp                  DOUBLE PRECISION NOT NULL DEFAULT 0,
	temp                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	hr                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	rr                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	o2                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	category             TEXT NOT NULL DEFAULT '',
	color                TEXT NOT NULL DEFAULT '',
	arrival_timestamp    TEXT NOT NULL,
	registered_timestamp TEXT NOT NULL DEFAULT '',
	booked               BOOLEAN NOT NULL DEFAULT FALSE,
	assigned_session     TEXT NOT NULL DEFAULT '',
	assigned_at          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (mrn, arrival_timestamp)
);

CREATE TABLE IF NOT EXISTS visits (
	id                  BIGSERIAL PRIMARY KEY,
	mrn                 TEXT NOT NULL,
	name                TEXT NOT NULL DEFAULT '',
	complaint           TEXT NOT NULL DEFAULT '',
	medicine            TEXT NOT NULL DEFAULT '',
	test                TEXT NOT NULL DEFAULT '',
	completed_timestamp TEXT NOT NULL,
	arrival_timestamp   TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_visits_mrn ON visits (mrn);
`

var patientSelectColumns = []interface{}{
	"mrn", "name", "age", "gender", "complaint",
	"sbp", "dbp", "temp", "hr", "rr", "o2",
	"category", "color", "arrival_timestamp", "registered_timestamp",
	"booked", "assigned_session", "assigned_at",
}

var visitSelectColumns = []interface{}{
	"mrn", "name", "complaint", "medicine", "test",
	"completed_timestamp", "arrival_timestamp", "category",
}

// PostgresPatientAdapter implements PatientRepository on PostgreSQL
type PostgresPatientAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPostgresPatientAdapter creates a new PostgreSQL patient adapter
func NewPostgresPatientAdapter(client *postgres.Client) *PostgresPatientAdapter {
	return &PostgresPatientAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// EnsureSchema creates the tables when they do not exist yet
func EnsureSchema(ctx context.Context, client *postgres.Client) error {
	if _, err := client.DB().ExecContext(ctx, Schema); err != nil {
		return apperrors.NewInternalError("failed to create schema", err)
	}
	return nil
}

// Insert stores a new registration
func (a *PostgresPatientAdapter) Insert(ctx context.Context, patient *entities.PatientRegistration) error {
	if err := patient.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	record := goqu.Record{
		"mrn":                  patient.MRN,
		"name":                 patient.Name,
		"age":                  patient.Age,
		"gender":               patient.Gender,
		"complaint":            patient.Complaint,
		"sbp":                  patient.SBP,
		"dbp":                  patient.DBP,
		"temp":                 patient.Temp,
		"hr":                   patient.HR,
		"rr":                   patient.RR,
		"o2":                   patient.O2,
		"category":             string(patient.Category),
		"color":                patient.Color,
		"arrival_timestamp":    patient.ArrivalTimestamp,
		"registered_timestamp": patient.RegisteredTimestamp,
		"booked":               patient.Booked,
		"assigned_session":     patient.AssignedSession,
		"assigned_at":          patient.AssignedAt,
	}

	query, args, err := a.db.Insert(patientsTable).Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError(fmt.Sprintf("registration %s already exists", patient.Key()))
		}
		return apperrors.NewInternalError("failed to insert registration", err)
	}
	return nil
}

// FindAll returns every registration matching filter
func (a *PostgresPatientAdapter) FindAll(ctx context.Context, filter repositories.Filter) ([]*entities.PatientRegistration, error) {
	where, err := toExpression(filter, patientColumns)
	if err != nil {
		return nil, err
	}

	query, args, err := a.db.From(patientsTable).Prepared(true).
		Select(patientSelectColumns...).
		Where(where).
		Order(goqu.I("registered_timestamp").Asc(), goqu.I("arrival_timestamp").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query registrations", err)
	}
	defer rows.Close()

	var patients []*entities.PatientRegistration
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan registration", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate registrations", err)
	}
	return patients, nil
}

// FindOne returns the first match, or nil
func (a *PostgresPatientAdapter) FindOne(ctx context.Context, filter repositories.Filter) (*entities.PatientRegistration, error) {
	where, err := toExpression(filter, patientColumns)
	if err != nil {
		return nil, err
	}

	query, args, err := a.db.From(patientsTable).Prepared(true).
		Select(patientSelectColumns...).
		Where(where).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	p, err := scanPatient(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get registration", err)
	}
	return p, nil
}

// UpdateOne applies patch to the first match
func (a *PostgresPatientAdapter) UpdateOne(ctx context.Context, filter repositories.Filter, patch repositories.Patch) (int64, error) {
	where, err := toExpression(filter, patientColumns)
	if err != nil {
		return 0, err
	}
	set, err := toRecord(patch)
	if err != nil {
		return 0, err
	}

	first := a.db.From(patientsTable).Select("ctid").Where(where).Limit(1)
	query, args, err := a.db.Update(patientsTable).Prepared(true).
		Set(set).
		Where(goqu.I("ctid").Eq(first)).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to update registration", err)
	}
	matched, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to read affected rows", err)
	}
	return matched, nil
}

// DeleteOne removes the first match
func (a *PostgresPatientAdapter) DeleteOne(ctx context.Context, filter repositories.Filter) error {
	where, err := toExpression(filter, patientColumns)
	if err != nil {
		return err
	}

	first := a.db.From(patientsTable).Select("ctid").Where(where).Limit(1)
	query, args, err := a.db.Delete(patientsTable).Prepared(true).
		Where(goqu.I("ctid").Eq(first)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to delete registration", err)
	}
	return nil
}

// Count returns the number of matches
func (a *PostgresPatientAdapter) Count(ctx context.Context, filter repositories.Filter) (int64, error) {
	return countRows(ctx, a.client, a.db, patientsTable, filter, patientColumns)
}

// PostgresVisitAdapter implements VisitRepository on PostgreSQL
type PostgresVisitAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPostgresVisitAdapter creates a new PostgreSQL visit adapter
func NewPostgresVisitAdapter(client *postgres.Client) *PostgresVisitAdapter {
	return &PostgresVisitAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Insert appends a visit record
func (a *PostgresVisitAdapter) Insert(ctx context.Context, visit *entities.VisitRecord) error {
	record := goqu.Record{
		"mrn":                 visit.MRN,
		"name":                visit.Name,
		"complaint":           visit.Complaint,
		"medicine":            visit.Medicine,
		"test":                visit.Test,
		"completed_timestamp": visit.CompletedTimestamp,
		"arrival_timestamp":   visit.ArrivalTimestamp,
		"category":            string(visit.Category),
	}

	query, args, err := a.db.Insert(visitsTable).Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to insert visit", err)
	}
	return nil
}

// FindAll returns every visit matching filter in insertion order
func (a *PostgresVisitAdapter) FindAll(ctx context.Context, filter repositories.Filter) ([]*entities.VisitRecord, error) {
	where, err := toExpression(filter, visitColumns)
	if err != nil {
		return nil, err
	}

	query, args, err := a.db.From(visitsTable).Prepared(true).
		Select(visitSelectColumns...).
		Where(where).
		Order(goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query visits", err)
	}
	defer rows.Close()

	var visits []*entities.VisitRecord
	for rows.Next() {
		v := &entities.VisitRecord{}
		var category string
		if err := rows.Scan(
			&v.MRN,
			&v.Name,
			&v.Complaint,
			&v.Medicine,
			&v.Test,
			&v.CompletedTimestamp,
			&v.ArrivalTimestamp,
			&category,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan visit", err)
		}
		v.Category = entities.Category(category)
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate visits", err)
	}
	return visits, nil
}

// DeleteOne removes the first match
func (a *PostgresVisitAdapter) DeleteOne(ctx context.Context, filter repositories.Filter) error {
	where, err := toExpression(filter, visitColumns)
	if err != nil {
		return err
	}

	first := a.db.From(visitsTable).Select("id").Where(where).Order(goqu.I("id").Asc()).Limit(1)
	query, args, err := a.db.Delete(visitsTable).Prepared(true).
		Where(goqu.I("id").Eq(first)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to delete visit", err)
	}
	return nil
}

// Count returns the number of matches
func (a *PostgresVisitAdapter) Count(ctx context.Context, filter repositories.Filter) (int64, error) {
	return countRows(ctx, a.client, a.db, visitsTable, filter, visitColumns)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*entities.PatientRegistration, error) {
	p := &entities.PatientRegistration{}
	var category string
	err := row.Scan(
		&p.MRN,
		&p.Name,
		&p.Age,
		&p.Gender,
		&p.Complaint,
		&p.SBP,
		&p.DBP,
		&p.Temp,
		&p.HR,
		&p.RR,
		&p.O2,
		&category,
		&p.Color,
		&p.ArrivalTimestamp,
		&p.RegisteredTimestamp,
		&p.Booked,
		&p.AssignedSession,
		&p.AssignedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Category = entities.Category(category)
	return p, nil
}

func countRows(ctx context.Context, client *postgres.Client, db *goqu.Database, table string, filter repositories.Filter, columns map[string]string) (int64, error) {
	where, err := toExpression(filter, columns)
	if err != nil {
		return 0, err
	}

	query, args, err := db.From(table).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var n int64
	if err := client.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.NewInternalError(fmt.Sprintf("failed to count %s", table), err)
	}
	return n, nil
}

// toExpression maps a field-equality filter onto column predicates
func toExpression(filter repositories.Filter, columns map[string]string) (exp.Ex, error) {
	where := goqu.Ex{}
	for field, value := range filter {
		column, ok := columns[field]
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown field %s", field))
		}
		where[column] = normalise(value)
	}
	return where, nil
}

func toRecord(patch repositories.Patch) (goqu.Record, error) {
	record := goqu.Record{}
	for field, value := range patch {
		if !isPatchable(field) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("field %s cannot be patched", field))
		}
		record[patientColumns[field]] = normalise(value)
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
