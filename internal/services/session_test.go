package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
	"github.com/CesarGoto1/SecurityEye/internal/storage"
)

type stubDiagnoser struct {
	resp    json.RawMessage
	err     error
	calls   int
	lastSum models.SessionSummary
}

func (s *stubDiagnoser) Diagnose(ctx context.Context, summary models.SessionSummary) (json.RawMessage, error) {
	s.calls++
	s.lastSum = summary
	return s.resp, s.err
}

type recordingNotifier struct {
	closed []int64
	rests  []string
}

func (n *recordingNotifier) SessionClosed(sesionID int64, esFatiga bool) {
	n.closed = append(n.closed, sesionID)
}

func (n *recordingNotifier) RestLogged(sesionID int64, actividad string) {
	n.rests = append(n.rests, actividad)
}

func newSessionService(store storage.Store, diag DiagnosisProvider, notifier LiveNotifier) *SessionService {
	return NewSessionService(store, diag, notifier, NewMetrics(), logging.NewNop())
}

func TestOpenSessionValidation(t *testing.T) {
	svc := newSessionService(storage.NewMemoryStore(), nil, nil)

	_, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{TipoActividad: "estudio"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 1})
	assert.True(t, apperrors.IsValidation(err))
}

func TestOpenSession(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{
		UsuarioID:     7,
		TipoActividad: "lectura",
		Fuente:        "webcam",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	s, ok := store.Session(id)
	require.True(t, ok)
	assert.Equal(t, int64(7), s.UsuarioID)
	assert.Nil(t, s.FechaFin)
}

func terminalRequest(usuarioID int64) *models.FatigueResultRequest {
	return &models.FatigueResultRequest{
		UsuarioID:      usuarioID,
		Actividad:      "estudio",
		Sebr:           9,
		BlinkRateMin:   11,
		Perclos:        31.2,
		TiempoTotalSeg: 600,
		Alertas:        2,
		EsFatiga:       true,
		KssFinal:       7,
	}
}

func TestIngestWithWebhookDiagnosis(t *testing.T) {
	store := storage.NewMemoryStore()
	diag := &stubDiagnoser{resp: json.RawMessage(`{"diagnostico_general":"fatiga"}`)}
	notifier := &recordingNotifier{}
	svc := newSessionService(store, diag, notifier)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	req := terminalRequest(3)
	req.SesionID = id
	res, err := svc.IngestTerminalMeasurement(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, id, res.SesionID)
	assert.JSONEq(t, `{"diagnostico_general":"fatiga"}`, string(res.Diagnostico))

	assert.Equal(t, 1, diag.calls)
	assert.Equal(t, 600, diag.lastSum.TiempoTotalSeg)
	assert.Equal(t, 7, diag.lastSum.KssFinal)

	assert.Equal(t, 1, store.MeasurementCount(id))
	assert.Equal(t, 1, store.DiagnosisCount())
	s, _ := store.Session(id)
	require.NotNil(t, s.FechaFin)
	assert.Equal(t, 600, s.TotalSegundos)
	assert.True(t, s.EsFatiga)
	assert.Equal(t, []int64{id}, notifier.closed)
}

func TestIngestSurvivesWebhookFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	diag := &stubDiagnoser{err: errors.New("n8n unreachable")}
	svc := newSessionService(store, diag, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	req := terminalRequest(3)
	req.SesionID = id
	res, err := svc.IngestTerminalMeasurement(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Diagnostico)

	// Closure committed despite the webhook failure.
	assert.Equal(t, 1, store.MeasurementCount(id))
	assert.Equal(t, 0, store.DiagnosisCount())
	s, _ := store.Session(id)
	assert.NotNil(t, s.FechaFin)
}

func TestIngestResolvesLatestOpenSession(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	first, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 5, TipoActividad: "estudio"})
	require.NoError(t, err)
	second, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 5, TipoActividad: "lectura"})
	require.NoError(t, err)

	res, err := svc.IngestTerminalMeasurement(context.Background(), terminalRequest(5))
	require.NoError(t, err)
	assert.Equal(t, second, res.SesionID)

	// The older session stays open.
	s, _ := store.Session(first)
	assert.Nil(t, s.FechaFin)
}

func TestIngestNoOpenSession(t *testing.T) {
	svc := newSessionService(storage.NewMemoryStore(), nil, nil)

	_, err := svc.IngestTerminalMeasurement(context.Background(), terminalRequest(99))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIngestRollsBackOnCloseFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	diag := &stubDiagnoser{resp: json.RawMessage(`{"ok":true}`)}
	svc := newSessionService(store, diag, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	store.FailCloseSession = errors.New("deadlock")
	req := terminalRequest(3)
	req.SesionID = id
	_, err = svc.IngestTerminalMeasurement(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))

	// Neither measurement nor diagnosis survives the rollback.
	assert.Equal(t, 0, store.MeasurementCount(id))
	assert.Equal(t, 0, store.DiagnosisCount())
	s, _ := store.Session(id)
	assert.Nil(t, s.FechaFin)
}

func TestIngestResubmissionDuplicates(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	req := terminalRequest(3)
	req.SesionID = id
	_, err = svc.IngestTerminalMeasurement(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.IngestTerminalMeasurement(context.Background(), req)
	require.NoError(t, err)

	// No dedup on replays: two rows, the closure stays first-wins.
	assert.Equal(t, 2, store.MeasurementCount(id))
}

func TestEndSessionIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(context.Background(), id))
	s, _ := store.Session(id)
	require.NotNil(t, s.FechaFin)
	first := *s.FechaFin

	require.NoError(t, svc.EndSession(context.Background(), id))
	s, _ = store.Session(id)
	assert.Equal(t, first, *s.FechaFin)
}

func TestResolveDiagnosisPrefersCache(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	cached := json.RawMessage(`{"diagnostico_general":"cached"}`)
	require.NoError(t, store.UpsertDiagnosis(context.Background(), 1, cached))

	got, err := svc.ResolveDiagnosis(context.Background(), 1)
	require.NoError(t, err)
	assert.JSONEq(t, string(cached), string(got))
}

func TestResolveDiagnosisComputesLocally(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)
	require.NoError(t, store.InsertMeasurement(context.Background(), &models.Measurement{
		SesionID:       id,
		Perclos:        30,
		PctIncompletos: 25,
		NumBostezos:    1,
	}))

	got, err := svc.ResolveDiagnosis(context.Background(), id)
	require.NoError(t, err)

	var d models.Diagnosis
	require.NoError(t, json.Unmarshal(got, &d))
	assert.Equal(t, VerdictFatigue, d.DiagnosticoGeneral)
	assert.Equal(t, SeverityModerate, d.SeveridadFatigaFinal)

	// Idempotent: the second call serves the stored row unchanged.
	again, err := svc.ResolveDiagnosis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(got), string(again))
	assert.Equal(t, 1, store.DiagnosisCount())
}

func TestResolveDiagnosisNoMeasurements(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newSessionService(store, nil, nil)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	_, err = svc.ResolveDiagnosis(context.Background(), id)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLogRestActivity(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := newSessionService(store, nil, notifier)

	id, err := svc.OpenSession(context.Background(), &models.CreateSessionRequest{UsuarioID: 3, TipoActividad: "estudio"})
	require.NoError(t, err)

	err = svc.LogRestActivity(context.Background(), &models.RestLogRequest{
		SesionID:        id,
		ActividadID:     1,
		ActividadNombre: "20-20-20",
		DuracionSeg:     20,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"20-20-20"}, notifier.rests)

	s, _ := store.Session(id)
	var entries []models.RestLogEntry
	require.NoError(t, json.Unmarshal(s.Resumen, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "descanso", entries[0].Tipo)
	assert.Equal(t, "20-20-20", entries[0].Actividad)
	assert.Equal(t, 20, entries[0].DuracionSeg)
}
