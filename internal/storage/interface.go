package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/CesarGoto1/SecurityEye/internal/models"
)

// Sentinel errors the service layer translates into its taxonomy.
var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate")
)

type SessionRepository interface {
	// CreateSession inserts an open session (fecha_inicio = now) and
	// returns the generated id.
	CreateSession(ctx context.Context, usuarioID int64, tipoActividad, fuente string) (int64, error)
	// LatestOpenSessionID resolves the newest session of the user whose
	// fecha_fin is still null. ErrNotFound when none exists.
	LatestOpenSessionID(ctx context.Context, usuarioID int64) (int64, error)
	// CloseSession writes the terminal totals and sets fecha_fin. A
	// session already closed is left untouched.
	CloseSession(ctx context.Context, sesionID int64, close models.SessionClose) error
	// EndSession sets fecha_fin only. Idempotent by construction.
	EndSession(ctx context.Context, sesionID int64) error
	// AppendRestLog appends one entry to the session's resumen array.
	AppendRestLog(ctx context.Context, sesionID int64, entry models.RestLogEntry) error
	SessionDetail(ctx context.Context, sesionID int64) (*models.SessionDetail, error)
	UserHistory(ctx context.Context, usuarioID int64) ([]models.HistoryRow, error)
	AllSessions(ctx context.Context) ([]models.AdminSessionRow, error)
}

type MeasurementRepository interface {
	InsertMeasurement(ctx context.Context, m *models.Measurement) error
	// LatestMeasurement returns the newest measurement of the session by
	// capture timestamp. ErrNotFound when the session has none.
	LatestMeasurement(ctx context.Context, sesionID int64) (*models.Measurement, error)
	SessionStages(ctx context.Context, sesionID int64) ([]models.StageRow, error)
}

type DiagnosisRepository interface {
	// UpsertDiagnosis inserts or replaces the one diagnosis row of the
	// session, keyed by the unique sesion_id constraint.
	UpsertDiagnosis(ctx context.Context, sesionID int64, diagnostico json.RawMessage) error
	// GetDiagnosis returns the stored object. ErrNotFound when absent or
	// empty.
	GetDiagnosis(ctx context.Context, sesionID int64) (json.RawMessage, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByCorreo(ctx context.Context, correo string) (*models.User, error)
	TouchUltimoAcceso(ctx context.Context, userID int64) error
}

// Store is the full persistence gateway. InTx runs fn against a
// transactional view of the same store; any error rolls back every write
// made inside fn.
type Store interface {
	SessionRepository
	MeasurementRepository
	DiagnosisRepository
	UserRepository
	InTx(ctx context.Context, fn func(Store) error) error
}
