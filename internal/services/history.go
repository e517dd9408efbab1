package services

import (
	"context"
	"errors"
	"math"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
	"github.com/CesarGoto1/SecurityEye/internal/storage"
)

// HistoryService serves the read-side projections. Plain glue over the
// storage layer plus the dashboard aggregates.
type HistoryService struct {
	store  storage.Store
	logger logging.Logger
}

func NewHistoryService(store storage.Store, logger logging.Logger) *HistoryService {
	return &HistoryService{store: store, logger: logger}
}

type HistoryResponse struct {
	Empty     bool                    `json:"empty"`
	Historial []models.HistoryRow     `json:"historial,omitempty"`
	Promedios *models.HistoryAverages `json:"promedios,omitempty"`
}

// UserHistory lists the user's closed sessions with dashboard averages.
// The join may emit one row per measurement; sessions are deduplicated
// keeping the last row seen, first-appearance order preserved.
func (h *HistoryService) UserHistory(ctx context.Context, usuarioID int64) (*HistoryResponse, error) {
	rows, err := h.store.UserHistory(ctx, usuarioID)
	if err != nil {
		return nil, apperrors.Persistence(err, "read history")
	}
	if len(rows) == 0 {
		return &HistoryResponse{Empty: true}, nil
	}

	var order []int64
	unique := make(map[int64]models.HistoryRow, len(rows))
	for _, r := range rows {
		if _, seen := unique[r.SesionID]; !seen {
			order = append(order, r.SesionID)
		}
		unique[r.SesionID] = r
	}

	historial := make([]models.HistoryRow, 0, len(order))
	var sumPerclos float64
	totalAlertas := 0
	totalSegundos := 0
	for _, id := range order {
		r := unique[id]
		historial = append(historial, r)
		if r.Perclos != nil {
			sumPerclos += *r.Perclos
		}
		totalAlertas += r.Alertas
		totalSegundos += r.TotalSegundos
	}

	promedios := &models.HistoryAverages{
		PerclosAvg:   round1(sumPerclos / float64(len(historial))),
		AlertasTotal: totalAlertas,
	}
	if totalSegundos > 0 {
		promedios.TiempoTotalMin = round1(float64(totalSegundos) / 60)
	}

	return &HistoryResponse{Historial: historial, Promedios: promedios}, nil
}

func (h *HistoryService) SessionDetail(ctx context.Context, sesionID int64) (*models.SessionDetail, error) {
	d, err := h.store.SessionDetail(ctx, sesionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("session %d not found", sesionID)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "read session detail")
	}
	return d, nil
}

func (h *HistoryService) AllSessions(ctx context.Context) ([]models.AdminSessionRow, error) {
	rows, err := h.store.AllSessions(ctx)
	if err != nil {
		return nil, apperrors.Persistence(err, "read admin sessions")
	}
	return rows, nil
}

// SessionStages serves the legacy per-stage read path keyed by etapa.
// The continuous model never writes etapa, so rows without one are
// skipped; the endpoint stays for old clients.
func (h *HistoryService) SessionStages(ctx context.Context, sesionID int64) (map[string]models.StageRow, error) {
	rows, err := h.store.SessionStages(ctx, sesionID)
	if err != nil {
		return nil, apperrors.Persistence(err, "read session stages")
	}
	out := make(map[string]models.StageRow)
	for _, r := range rows {
		if r.Etapa == "" {
			continue
		}
		out[r.Etapa] = r
	}
	return out, nil
}

// RestActivities is the static rest-activity catalog.
func RestActivities() []models.RestActivity {
	return []models.RestActivity{
		{ID: 1, Nombre: "20-20-20", DuracionSeg: 20, Instrucciones: "Mira algo a 6m por 20 segundos"},
		{ID: 2, Nombre: "Ejercicio ocular", DuracionSeg: 30, Instrucciones: "Realiza círculos con los ojos 10 veces"},
		{ID: 3, Nombre: "Descanso", DuracionSeg: 60, Instrucciones: "Cierra los ojos y respira profundo"},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
