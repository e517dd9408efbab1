package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so every query
// below runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	db     querier
	inTx   bool
	logger logging.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger logging.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool, logger: logger}
}

func (p *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if p.inTx {
		return fn(p)
	}
	return p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: p.pool, db: tx, inTx: true, logger: p.logger})
	})
}

// --- SessionRepository ---

func (p *PostgresStore) CreateSession(ctx context.Context, usuarioID int64, tipoActividad, fuente string) (int64, error) {
	var id int64
	err := p.db.QueryRow(ctx,
		`INSERT INTO sesiones (usuario_id, tipo_actividad, fuente, fecha_inicio)
		 VALUES ($1, $2, $3, now())
		 RETURNING id`,
		usuarioID, tipoActividad, fuente,
	).Scan(&id)
	if err != nil {
		p.logger.Errorf("insert session: %v", err)
		return 0, err
	}
	return id, nil
}

func (p *PostgresStore) LatestOpenSessionID(ctx context.Context, usuarioID int64) (int64, error) {
	var id int64
	err := p.db.QueryRow(ctx,
		`SELECT id FROM sesiones
		 WHERE usuario_id = $1 AND fecha_fin IS NULL
		 ORDER BY fecha_inicio DESC, id DESC
		 LIMIT 1`,
		usuarioID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (p *PostgresStore) CloseSession(ctx context.Context, sesionID int64, close models.SessionClose) error {
	_, err := p.db.Exec(ctx,
		`UPDATE sesiones
		 SET total_segundos = $1,
		     alertas = $2,
		     kss_final = $3,
		     es_fatiga = $4,
		     resumen = $5,
		     fecha_fin = now()
		 WHERE id = $6 AND fecha_fin IS NULL`,
		close.TotalSegundos, close.Alertas, nullIfZero(close.KssFinal),
		close.EsFatiga, []byte(close.Resumen), sesionID,
	)
	if err != nil {
		p.logger.Errorf("close session %d: %v", sesionID, err)
	}
	return err
}

func (p *PostgresStore) EndSession(ctx context.Context, sesionID int64) error {
	_, err := p.db.Exec(ctx,
		`UPDATE sesiones SET fecha_fin = now() WHERE id = $1 AND fecha_fin IS NULL`,
		sesionID,
	)
	return err
}

func (p *PostgresStore) AppendRestLog(ctx context.Context, sesionID int64, entry models.RestLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx,
		`UPDATE sesiones
		 SET resumen = COALESCE(resumen, '[]'::jsonb) || jsonb_build_array($1::jsonb)
		 WHERE id = $2`,
		raw, sesionID,
	)
	if err != nil {
		p.logger.Errorf("append rest log to session %d: %v", sesionID, err)
	}
	return err
}

func (p *PostgresStore) SessionDetail(ctx context.Context, sesionID int64) (*models.SessionDetail, error) {
	var (
		d        models.SessionDetail
		kss      *int
		momentos []byte
		diag     []byte
	)
	err := p.db.QueryRow(ctx,
		`SELECT s.id, s.usuario_id, s.tipo_actividad, s.total_segundos, s.alertas,
		        s.kss_final, s.es_fatiga,
		        TO_CHAR(s.fecha_inicio, 'DD/MM/YYYY HH24:MI'),
		        TO_CHAR(s.fecha_fin, 'DD/MM/YYYY HH24:MI'),
		        m.perclos, m.velocidad_ocular, m.num_bostezos, m.blink_rate_min,
		        m.parpadeos, m.max_sin_parpadeo, m.momentos_fatiga,
		        dia.diagnostico_json
		 FROM sesiones s
		 LEFT JOIN LATERAL (
		     SELECT perclos, velocidad_ocular, num_bostezos, blink_rate_min,
		            parpadeos, max_sin_parpadeo, momentos_fatiga
		     FROM mediciones m2
		     WHERE m2.sesion_id = s.id
		     ORDER BY m2.fecha DESC
		     LIMIT 1
		 ) m ON TRUE
		 LEFT JOIN diagnosticos_ia dia ON dia.sesion_id = s.id
		 WHERE s.id = $1`,
		sesionID,
	).Scan(&d.ID, &d.UsuarioID, &d.TipoActividad, &d.TotalSegundos, &d.Alertas,
		&kss, &d.EsFatiga, &d.FechaInicio, &d.FechaFin,
		&d.Perclos, &d.VelocidadOcular, &d.NumBostezos, &d.BlinkRateMin,
		&d.Parpadeos, &d.MaxSinParpadeo, &momentos, &diag)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if kss != nil {
		d.KssFinal = *kss
	}
	d.MomentosFatiga = momentos
	d.DiagnosticoJSON = diag
	return &d, nil
}

func (p *PostgresStore) UserHistory(ctx context.Context, usuarioID int64) ([]models.HistoryRow, error) {
	rows, err := p.db.Query(ctx,
		`SELECT s.id,
		        TO_CHAR(s.fecha_inicio, 'DD/MM/YYYY HH24:MI'),
		        s.tipo_actividad, s.total_segundos, s.alertas, s.es_fatiga,
		        m.perclos, m.velocidad_ocular, m.num_bostezos, m.blink_rate_min,
		        dia.diagnostico_json
		 FROM sesiones s
		 LEFT JOIN mediciones m ON m.sesion_id = s.id
		 LEFT JOIN diagnosticos_ia dia ON dia.sesion_id = s.id
		 WHERE s.usuario_id = $1 AND s.fecha_fin IS NOT NULL
		 ORDER BY s.fecha_inicio DESC`,
		usuarioID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryRow
	for rows.Next() {
		var (
			h    models.HistoryRow
			diag []byte
		)
		if err := rows.Scan(&h.SesionID, &h.Fecha, &h.TipoActividad, &h.TotalSegundos,
			&h.Alertas, &h.EsFatiga, &h.Perclos, &h.VelocidadOcular,
			&h.NumBostezos, &h.BlinkRateMin, &diag); err != nil {
			return nil, err
		}
		h.DiagnosticoJSON = diag
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AllSessions(ctx context.Context) ([]models.AdminSessionRow, error) {
	rows, err := p.db.Query(ctx,
		`SELECT s.id,
		        CONCAT(u.nombre, ' ', u.apellido),
		        TO_CHAR(s.fecha_inicio, 'DD/MM/YYYY HH24:MI'),
		        s.tipo_actividad, s.total_segundos, s.alertas, s.es_fatiga,
		        m.perclos, m.velocidad_ocular, m.num_bostezos
		 FROM sesiones s
		 JOIN usuarios u ON u.id = s.usuario_id
		 LEFT JOIN mediciones m ON m.sesion_id = s.id
		 WHERE s.fecha_fin IS NOT NULL
		 ORDER BY s.fecha_inicio DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AdminSessionRow
	for rows.Next() {
		var a models.AdminSessionRow
		if err := rows.Scan(&a.SesionID, &a.Estudiante, &a.Fecha, &a.TipoActividad,
			&a.TotalSegundos, &a.Alertas, &a.EsFatiga,
			&a.Perclos, &a.VelocidadOcular, &a.NumBostezos); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- MeasurementRepository ---

func (p *PostgresStore) InsertMeasurement(ctx context.Context, m *models.Measurement) error {
	err := p.db.QueryRow(ctx,
		`INSERT INTO mediciones (
		     sesion_id, actividad, parpadeos, blink_rate_min, perclos, ear_promedio,
		     pct_incompletos, tiempo_cierre, num_bostezos, velocidad_ocular,
		     nivel_fatiga, estado_fatiga, max_sin_parpadeo, alertas,
		     momentos_fatiga, nivel_subjetivo, fecha
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16, now())
		 RETURNING id, fecha`,
		m.SesionID, m.Actividad, m.Parpadeos, m.BlinkRateMin, m.Perclos, m.EarPromedio,
		m.PctIncompletos, m.TiempoCierre, m.NumBostezos, m.VelocidadOcular,
		m.NivelFatiga, m.EstadoFatiga, m.MaxSinParpadeo, m.Alertas,
		[]byte(m.MomentosFatiga), nullIfZero(m.NivelSubjetivo),
	).Scan(&m.ID, &m.Fecha)
	if err != nil {
		p.logger.Errorf("insert measurement for session %d: %v", m.SesionID, err)
	}
	return err
}

func (p *PostgresStore) LatestMeasurement(ctx context.Context, sesionID int64) (*models.Measurement, error) {
	var (
		m        models.Measurement
		nivel    *int
		momentos []byte
	)
	err := p.db.QueryRow(ctx,
		`SELECT id, sesion_id, actividad, parpadeos, blink_rate_min, perclos,
		        ear_promedio, pct_incompletos, tiempo_cierre, num_bostezos,
		        velocidad_ocular, nivel_fatiga, estado_fatiga, max_sin_parpadeo,
		        alertas, momentos_fatiga, nivel_subjetivo, etapa, fecha
		 FROM mediciones
		 WHERE sesion_id = $1
		 ORDER BY fecha DESC
		 LIMIT 1`,
		sesionID,
	).Scan(&m.ID, &m.SesionID, &m.Actividad, &m.Parpadeos, &m.BlinkRateMin, &m.Perclos,
		&m.EarPromedio, &m.PctIncompletos, &m.TiempoCierre, &m.NumBostezos,
		&m.VelocidadOcular, &m.NivelFatiga, &m.EstadoFatiga, &m.MaxSinParpadeo,
		&m.Alertas, &momentos, &nivel, &m.Etapa, &m.Fecha)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.MomentosFatiga = momentos
	if nivel != nil {
		m.NivelSubjetivo = *nivel
	}
	return &m, nil
}

func (p *PostgresStore) SessionStages(ctx context.Context, sesionID int64) ([]models.StageRow, error) {
	rows, err := p.db.Query(ctx,
		`SELECT COALESCE(etapa, ''), perclos, parpadeos, velocidad_ocular,
		        num_bostezos, COALESCE(nivel_subjetivo, 0), estado_fatiga
		 FROM mediciones
		 WHERE sesion_id = $1`,
		sesionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StageRow
	for rows.Next() {
		var s models.StageRow
		if err := rows.Scan(&s.Etapa, &s.Perclos, &s.Parpadeos, &s.VelocidadOcular,
			&s.NumBostezos, &s.NivelSubjetivo, &s.EstadoFatiga); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- DiagnosisRepository ---

func (p *PostgresStore) UpsertDiagnosis(ctx context.Context, sesionID int64, diagnostico json.RawMessage) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO diagnosticos_ia (sesion_id, diagnostico_json)
		 VALUES ($1, $2)
		 ON CONFLICT (sesion_id) DO UPDATE SET diagnostico_json = EXCLUDED.diagnostico_json`,
		sesionID, []byte(diagnostico),
	)
	if err != nil {
		p.logger.Errorf("upsert diagnosis for session %d: %v", sesionID, err)
	}
	return err
}

func (p *PostgresStore) GetDiagnosis(ctx context.Context, sesionID int64) (json.RawMessage, error) {
	var raw []byte
	err := p.db.QueryRow(ctx,
		`SELECT diagnostico_json FROM diagnosticos_ia WHERE sesion_id = $1`,
		sesionID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotFound
	}
	return raw, nil
}

// --- UserRepository ---

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	var id int64
	err := p.db.QueryRow(ctx,
		`INSERT INTO usuarios (nombre, apellido, correo, contrasena, rol_id)
		 VALUES ($1, $2, $3, $4, 2)
		 RETURNING id`,
		u.Nombre, u.Apellido, u.Correo, u.PasswordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		p.logger.Errorf("insert user: %v", err)
		return 0, err
	}
	return id, nil
}

func (p *PostgresStore) GetUserByCorreo(ctx context.Context, correo string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRow(ctx,
		`SELECT u.id, u.nombre, u.apellido, u.correo, u.contrasena,
		        COALESCE(r.nombre, ''), u.rol_id
		 FROM usuarios u
		 LEFT JOIN roles r ON r.id = u.rol_id
		 WHERE u.correo = $1`,
		correo,
	).Scan(&u.ID, &u.Nombre, &u.Apellido, &u.Correo, &u.PasswordHash, &u.Rol, &u.RolID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) TouchUltimoAcceso(ctx context.Context, userID int64) error {
	_, err := p.db.Exec(ctx,
		`UPDATE usuarios SET ultimo_acceso = now() WHERE id = $1`, userID)
	return err
}

func nullIfZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

var _ Store = (*PostgresStore)(nil)
