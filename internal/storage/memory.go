package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/CesarGoto1/SecurityEye/internal/models"
)

const fechaLayout = "02/01/2006 15:04"

// MemoryStore is an in-process Store used by unit tests and local
// development without a database. Behavior mirrors the Postgres
// implementation, including the fecha_fin-once guard and the upsert.
type MemoryStore struct {
	mu sync.Mutex

	nextSessionID     int64
	nextMeasurementID int64
	nextUserID        int64

	sessions     map[int64]*models.Session
	measurements []*models.Measurement
	diagnoses    map[int64]json.RawMessage
	users        map[int64]*models.User

	// Failure injection for rollback tests.
	FailInsertMeasurement error
	FailCloseSession      error
	FailUpsertDiagnosis   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[int64]*models.Session),
		diagnoses: make(map[int64]json.RawMessage),
		users:     make(map[int64]*models.User),
	}
}

type memorySnapshot struct {
	nextSessionID     int64
	nextMeasurementID int64
	nextUserID        int64
	sessions          map[int64]*models.Session
	measurements      []*models.Measurement
	diagnoses         map[int64]json.RawMessage
	users             map[int64]*models.User
}

func (m *MemoryStore) snapshot() memorySnapshot {
	s := memorySnapshot{
		nextSessionID:     m.nextSessionID,
		nextMeasurementID: m.nextMeasurementID,
		nextUserID:        m.nextUserID,
		sessions:          make(map[int64]*models.Session, len(m.sessions)),
		measurements:      make([]*models.Measurement, len(m.measurements)),
		diagnoses:         make(map[int64]json.RawMessage, len(m.diagnoses)),
		users:             make(map[int64]*models.User, len(m.users)),
	}
	for id, sess := range m.sessions {
		cp := *sess
		s.sessions[id] = &cp
	}
	for i, meas := range m.measurements {
		cp := *meas
		s.measurements[i] = &cp
	}
	for id, d := range m.diagnoses {
		s.diagnoses[id] = d
	}
	for id, u := range m.users {
		cp := *u
		s.users[id] = &cp
	}
	return s
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.nextSessionID = s.nextSessionID
	m.nextMeasurementID = s.nextMeasurementID
	m.nextUserID = s.nextUserID
	m.sessions = s.sessions
	m.measurements = s.measurements
	m.diagnoses = s.diagnoses
	m.users = s.users
}

// InTx snapshots the whole store and restores it when fn fails, which
// gives tests real rollback semantics.
func (m *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- SessionRepository ---

func (m *MemoryStore) CreateSession(ctx context.Context, usuarioID int64, tipoActividad, fuente string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSessionID++
	id := m.nextSessionID
	m.sessions[id] = &models.Session{
		ID:            id,
		UsuarioID:     usuarioID,
		TipoActividad: tipoActividad,
		Fuente:        fuente,
		FechaInicio:   time.Now(),
	}
	return id, nil
}

func (m *MemoryStore) LatestOpenSessionID(ctx context.Context, usuarioID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Session
	for _, s := range m.sessions {
		if s.UsuarioID != usuarioID || s.FechaFin != nil {
			continue
		}
		if best == nil || s.FechaInicio.After(best.FechaInicio) ||
			(s.FechaInicio.Equal(best.FechaInicio) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return 0, ErrNotFound
	}
	return best.ID, nil
}

func (m *MemoryStore) CloseSession(ctx context.Context, sesionID int64, close models.SessionClose) error {
	if m.FailCloseSession != nil {
		return m.FailCloseSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sesionID]
	if !ok || s.FechaFin != nil {
		return nil
	}
	now := time.Now()
	s.TotalSegundos = close.TotalSegundos
	s.Alertas = close.Alertas
	s.KssFinal = close.KssFinal
	s.EsFatiga = close.EsFatiga
	s.Resumen = close.Resumen
	s.FechaFin = &now
	return nil
}

func (m *MemoryStore) EndSession(ctx context.Context, sesionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sesionID]
	if !ok || s.FechaFin != nil {
		return nil
	}
	now := time.Now()
	s.FechaFin = &now
	return nil
}

func (m *MemoryStore) AppendRestLog(ctx context.Context, sesionID int64, entry models.RestLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sesionID]
	if !ok {
		return nil
	}
	var list []json.RawMessage
	if len(s.Resumen) > 0 {
		if err := json.Unmarshal(s.Resumen, &list); err != nil {
			// resumen holds the closure summary object, wrap it
			list = []json.RawMessage{s.Resumen}
		}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	list = append(list, raw)
	merged, err := json.Marshal(list)
	if err != nil {
		return err
	}
	s.Resumen = merged
	return nil
}

func (m *MemoryStore) SessionDetail(ctx context.Context, sesionID int64) (*models.SessionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sesionID]
	if !ok {
		return nil, ErrNotFound
	}
	d := &models.SessionDetail{
		ID:            s.ID,
		UsuarioID:     s.UsuarioID,
		TipoActividad: s.TipoActividad,
		TotalSegundos: s.TotalSegundos,
		Alertas:       s.Alertas,
		KssFinal:      s.KssFinal,
		EsFatiga:      s.EsFatiga,
		FechaInicio:   s.FechaInicio.Format(fechaLayout),
	}
	if s.FechaFin != nil {
		fin := s.FechaFin.Format(fechaLayout)
		d.FechaFin = &fin
	}
	if meas := m.latestMeasurementLocked(sesionID); meas != nil {
		d.Perclos = &meas.Perclos
		d.VelocidadOcular = &meas.VelocidadOcular
		d.NumBostezos = &meas.NumBostezos
		d.BlinkRateMin = &meas.BlinkRateMin
		d.Parpadeos = &meas.Parpadeos
		d.MaxSinParpadeo = &meas.MaxSinParpadeo
		d.MomentosFatiga = meas.MomentosFatiga
	}
	if diag, ok := m.diagnoses[sesionID]; ok {
		d.DiagnosticoJSON = diag
	}
	return d, nil
}

func (m *MemoryStore) UserHistory(ctx context.Context, usuarioID int64) ([]models.HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []*models.Session
	for _, s := range m.sessions {
		if s.UsuarioID == usuarioID && s.FechaFin != nil {
			closed = append(closed, s)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].FechaInicio.After(closed[j].FechaInicio)
	})
	var out []models.HistoryRow
	for _, s := range closed {
		h := models.HistoryRow{
			SesionID:      s.ID,
			Fecha:         s.FechaInicio.Format(fechaLayout),
			TipoActividad: s.TipoActividad,
			TotalSegundos: s.TotalSegundos,
			Alertas:       s.Alertas,
			EsFatiga:      s.EsFatiga,
		}
		if meas := m.latestMeasurementLocked(s.ID); meas != nil {
			h.Perclos = &meas.Perclos
			h.VelocidadOcular = &meas.VelocidadOcular
			h.NumBostezos = &meas.NumBostezos
			h.BlinkRateMin = &meas.BlinkRateMin
		}
		if diag, ok := m.diagnoses[s.ID]; ok {
			h.DiagnosticoJSON = diag
		}
		out = append(out, h)
	}
	return out, nil
}

func (m *MemoryStore) AllSessions(ctx context.Context) ([]models.AdminSessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []*models.Session
	for _, s := range m.sessions {
		if s.FechaFin != nil {
			closed = append(closed, s)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].FechaInicio.After(closed[j].FechaInicio)
	})
	var out []models.AdminSessionRow
	for _, s := range closed {
		a := models.AdminSessionRow{
			SesionID:      s.ID,
			Fecha:         s.FechaInicio.Format(fechaLayout),
			TipoActividad: s.TipoActividad,
			TotalSegundos: s.TotalSegundos,
			Alertas:       s.Alertas,
			EsFatiga:      s.EsFatiga,
		}
		if u, ok := m.users[s.UsuarioID]; ok {
			a.Estudiante = u.Nombre + " " + u.Apellido
		}
		if meas := m.latestMeasurementLocked(s.ID); meas != nil {
			a.Perclos = &meas.Perclos
			a.VelocidadOcular = &meas.VelocidadOcular
			a.NumBostezos = &meas.NumBostezos
		}
		out = append(out, a)
	}
	return out, nil
}

// --- MeasurementRepository ---

func (m *MemoryStore) InsertMeasurement(ctx context.Context, meas *models.Measurement) error {
	if m.FailInsertMeasurement != nil {
		return m.FailInsertMeasurement
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMeasurementID++
	meas.ID = m.nextMeasurementID
	if meas.Fecha.IsZero() {
		meas.Fecha = time.Now()
	}
	cp := *meas
	m.measurements = append(m.measurements, &cp)
	return nil
}

func (m *MemoryStore) LatestMeasurement(ctx context.Context, sesionID int64) (*models.Measurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meas := m.latestMeasurementLocked(sesionID)
	if meas == nil {
		return nil, ErrNotFound
	}
	cp := *meas
	return &cp, nil
}

func (m *MemoryStore) latestMeasurementLocked(sesionID int64) *models.Measurement {
	var best *models.Measurement
	for _, meas := range m.measurements {
		if meas.SesionID != sesionID {
			continue
		}
		if best == nil || meas.Fecha.After(best.Fecha) ||
			(meas.Fecha.Equal(best.Fecha) && meas.ID > best.ID) {
			best = meas
		}
	}
	return best
}

func (m *MemoryStore) SessionStages(ctx context.Context, sesionID int64) ([]models.StageRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StageRow
	for _, meas := range m.measurements {
		if meas.SesionID != sesionID {
			continue
		}
		s := models.StageRow{
			Perclos:         meas.Perclos,
			Parpadeos:       meas.Parpadeos,
			VelocidadOcular: meas.VelocidadOcular,
			NumBostezos:     meas.NumBostezos,
			NivelSubjetivo:  meas.NivelSubjetivo,
			EstadoFatiga:    meas.EstadoFatiga,
		}
		if meas.Etapa != nil {
			s.Etapa = *meas.Etapa
		}
		out = append(out, s)
	}
	return out, nil
}

// --- DiagnosisRepository ---

func (m *MemoryStore) UpsertDiagnosis(ctx context.Context, sesionID int64, diagnostico json.RawMessage) error {
	if m.FailUpsertDiagnosis != nil {
		return m.FailUpsertDiagnosis
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnoses[sesionID] = diagnostico
	return nil
}

func (m *MemoryStore) GetDiagnosis(ctx context.Context, sesionID int64) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagnoses[sesionID]
	if !ok || len(d) == 0 || string(d) == "null" {
		return nil, ErrNotFound
	}
	return d, nil
}

// DiagnosisCount reports stored diagnosis rows. Test helper.
func (m *MemoryStore) DiagnosisCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.diagnoses)
}

// MeasurementCount reports stored measurement rows for a session. Test helper.
func (m *MemoryStore) MeasurementCount(sesionID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, meas := range m.measurements {
		if meas.SesionID == sesionID {
			n++
		}
	}
	return n
}

// Session returns a copy of the stored session row. Test helper.
func (m *MemoryStore) Session(sesionID int64) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sesionID]
	if !ok {
		return models.Session{}, false
	}
	return *s, true
}

// --- UserRepository ---

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Correo == u.Correo {
			return 0, ErrDuplicate
		}
	}
	m.nextUserID++
	cp := *u
	cp.ID = m.nextUserID
	if cp.RolID == 0 {
		cp.RolID = 2
		cp.Rol = "Estudiante"
	}
	m.users[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemoryStore) GetUserByCorreo(ctx context.Context, correo string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Correo == correo {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SetUserRol overrides a user's role. Test helper.
func (m *MemoryStore) SetUserRol(correo, rol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Correo == correo {
			u.Rol = rol
		}
	}
}

func (m *MemoryStore) TouchUltimoAcceso(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		now := time.Now()
		u.UltimoAcceso = &now
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
