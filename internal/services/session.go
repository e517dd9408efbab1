package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
	"github.com/CesarGoto1/SecurityEye/internal/storage"
)

// DiagnosisProvider is the outbound diagnosis dependency. A nil
// provider simply means "no external diagnosis".
type DiagnosisProvider interface {
	Diagnose(ctx context.Context, summary models.SessionSummary) (json.RawMessage, error)
}

// LiveNotifier pushes session events to connected dashboard clients.
type LiveNotifier interface {
	SessionClosed(sesionID int64, esFatiga bool)
	RestLogged(sesionID int64, actividad string)
}

// SessionService orchestrates the session lifecycle: open, terminal
// measurement ingestion, diagnosis resolution and closure.
type SessionService struct {
	store     storage.Store
	diagnosis DiagnosisProvider
	notifier  LiveNotifier
	metrics   *Metrics
	logger    logging.Logger
}

func NewSessionService(store storage.Store, diagnosis DiagnosisProvider, notifier LiveNotifier, metrics *Metrics, logger logging.Logger) *SessionService {
	return &SessionService{
		store:     store,
		diagnosis: diagnosis,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

// OpenSession starts a monitoring run and returns the generated id.
func (s *SessionService) OpenSession(ctx context.Context, req *models.CreateSessionRequest) (int64, error) {
	if req.UsuarioID == 0 || req.TipoActividad == "" {
		return 0, apperrors.Validation("usuario_id and tipo_actividad are required")
	}
	id, err := s.store.CreateSession(ctx, req.UsuarioID, req.TipoActividad, req.Fuente)
	if err != nil {
		return 0, apperrors.Persistence(err, "create session")
	}
	s.metrics.IncSessionsOpened()
	s.logger.Infof("session %d opened for user %d", id, req.UsuarioID)
	return id, nil
}

// IngestResult is what the terminal ingestion returns to the client.
// Diagnostico stays null when the webhook produced nothing.
type IngestResult struct {
	SesionID    int64           `json:"sesion_id"`
	Diagnostico json.RawMessage `json:"diagnostico"`
}

// IngestTerminalMeasurement persists the terminal measurement, attaches
// the external diagnosis when one is available and closes the session.
// The webhook call happens before the transaction opens so no database
// lock is held during the outbound wait; its failure never aborts the
// operation. The measurement insert is unconditional: resubmission for
// the same session produces a duplicate row.
func (s *SessionService) IngestTerminalMeasurement(ctx context.Context, req *models.FatigueResultRequest) (*IngestResult, error) {
	sesionID := req.SesionID
	if sesionID == 0 {
		id, err := s.store.LatestOpenSessionID(ctx, req.UsuarioID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("no open session found for user %d", req.UsuarioID)
		}
		if err != nil {
			return nil, apperrors.Persistence(err, "resolve open session")
		}
		sesionID = id
	}

	summary := buildSummary(req)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, apperrors.Persistence(err, "encode session summary")
	}

	var diag json.RawMessage
	if s.diagnosis != nil {
		d, err := s.diagnosis.Diagnose(ctx, summary)
		if err != nil {
			s.metrics.IncWebhookFailures()
			s.logger.Warnf("diagnosis webhook failed for session %d: %v", sesionID, err)
		} else {
			diag = d
			s.metrics.IncWebhookDiagnoses()
		}
	}

	meas := measurementFromRequest(req, sesionID)

	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.InsertMeasurement(ctx, meas); err != nil {
			return err
		}
		if diag != nil {
			if err := tx.UpsertDiagnosis(ctx, sesionID, diag); err != nil {
				return err
			}
		}
		return tx.CloseSession(ctx, sesionID, models.SessionClose{
			TotalSegundos: req.TiempoTotalSeg,
			Alertas:       req.Alertas,
			KssFinal:      req.KssFinal,
			EsFatiga:      req.EsFatiga,
			Resumen:       summaryJSON,
		})
	})
	if err != nil {
		return nil, apperrors.Persistence(err, "finalize session")
	}

	s.metrics.IncMeasurements()
	s.metrics.IncSessionsClosed()
	if s.notifier != nil {
		s.notifier.SessionClosed(sesionID, req.EsFatiga)
	}
	s.logger.Infof("session %d closed, measurement %d stored, diagnosis=%v", sesionID, meas.ID, diag != nil)

	return &IngestResult{SesionID: sesionID, Diagnostico: diag}, nil
}

// EndSession closes a session without a measurement. A second call on
// an already closed session is a no-op.
func (s *SessionService) EndSession(ctx context.Context, sesionID int64) error {
	if err := s.store.EndSession(ctx, sesionID); err != nil {
		return apperrors.Persistence(err, "end session")
	}
	return nil
}

// ResolveDiagnosis returns the cached diagnosis for a session, or
// computes one with the local scorer and caches it. Concurrent callers
// may both compute; the last upsert wins and both results are
// equivalent since the scorer is deterministic.
func (s *SessionService) ResolveDiagnosis(ctx context.Context, sesionID int64) (json.RawMessage, error) {
	cached, err := s.store.GetDiagnosis(ctx, sesionID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.Persistence(err, "read diagnosis")
	}

	meas, err := s.store.LatestMeasurement(ctx, sesionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("no measurements for session %d", sesionID)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "read measurement")
	}

	diag := LocalDiagnosis(meas)
	raw, err := json.Marshal(diag)
	if err != nil {
		return nil, apperrors.Persistence(err, "encode diagnosis")
	}
	if err := s.store.UpsertDiagnosis(ctx, sesionID, raw); err != nil {
		return nil, apperrors.Persistence(err, "store diagnosis")
	}
	s.metrics.IncLocalDiagnoses()
	s.logger.Infof("local diagnosis computed for session %d", sesionID)
	return raw, nil
}

// LogRestActivity appends one rest entry to the session summary.
func (s *SessionService) LogRestActivity(ctx context.Context, req *models.RestLogRequest) error {
	entry := models.RestLogEntry{
		Tipo:        "descanso",
		ActividadID: req.ActividadID,
		Actividad:   req.ActividadNombre,
		DuracionSeg: req.DuracionSeg,
		Timestamp:   time.Now(),
	}
	if err := s.store.AppendRestLog(ctx, req.SesionID, entry); err != nil {
		return apperrors.Persistence(err, "log rest activity")
	}
	s.metrics.IncRestEntries()
	if s.notifier != nil {
		s.notifier.RestLogged(req.SesionID, req.ActividadNombre)
	}
	s.logger.Infof("rest activity %q logged for session %d", req.ActividadNombre, req.SesionID)
	return nil
}

func buildSummary(req *models.FatigueResultRequest) models.SessionSummary {
	summary := models.SessionSummary{
		TiempoTotalSeg:  req.TiempoTotalSeg,
		Perclos:         req.Perclos,
		Sebr:            req.Sebr,
		BlinkRateMin:    req.BlinkRateMin,
		PctIncompletos:  req.PctIncompletos,
		NumBostezos:     req.NumBostezos,
		VelocidadOcular: req.VelocidadOcular,
		AlertasTotales:  req.Alertas,
	}
	if req.KssFinal > 0 {
		summary.KssFinal = req.KssFinal
	}
	return summary
}

func measurementFromRequest(req *models.FatigueResultRequest, sesionID int64) *models.Measurement {
	estado := "NORMAL"
	nivel := 0
	if req.EsFatiga {
		estado = "FATIGA"
		nivel = 1
	}
	var momentos json.RawMessage
	if len(req.MomentosFatiga) > 0 {
		if raw, err := json.Marshal(req.MomentosFatiga); err == nil {
			momentos = raw
		}
	}
	return &models.Measurement{
		SesionID:        sesionID,
		Actividad:       req.Actividad,
		Parpadeos:       req.Sebr,
		BlinkRateMin:    req.BlinkRateMin,
		Perclos:         req.Perclos,
		EarPromedio:     req.EarPromedio,
		PctIncompletos:  req.PctIncompletos,
		TiempoCierre:    req.TiempoCierre,
		NumBostezos:     req.NumBostezos,
		VelocidadOcular: req.VelocidadOcular,
		NivelFatiga:     nivel,
		EstadoFatiga:    estado,
		MaxSinParpadeo:  req.MaxSinParpadeo,
		Alertas:         req.Alertas,
		MomentosFatiga:  momentos,
		NivelSubjetivo:  req.KssFinal,
	}
}
