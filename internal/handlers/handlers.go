package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/live"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
	"github.com/CesarGoto1/SecurityEye/internal/services"
)

type Handler struct {
	auth     *services.AuthService
	sessions *services.SessionService
	history  *services.HistoryService
	metrics  *services.Metrics
	hub      *live.Hub
	logger   logging.Logger
	validate *validator.Validate
}

func New(auth *services.AuthService, sessions *services.SessionService, history *services.HistoryService, metrics *services.Metrics, hub *live.Hub, logger logging.Logger) *Handler {
	return &Handler{
		auth:     auth,
		sessions: sessions,
		history:  history,
		metrics:  metrics,
		hub:      hub,
		logger:   logger,
		validate: validator.New(),
	}
}

// Routes wires every endpoint. Paths match the original web client.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/register", h.RegisterUser)
	r.POST("/login", h.Login)

	r.POST("/create-session", h.CreateSession)
	r.POST("/save-fatigue", h.SaveFatigue)
	r.POST("/end-session/:sesion_id", h.EndSession)
	r.POST("/get-or-create-diagnosis", h.GetOrCreateDiagnosis)

	r.POST("/get-user-history", h.UserHistory)
	r.GET("/sesiones/:sesion_id", h.SessionDetail)
	r.POST("/get-session-details", h.SessionStages)
	r.GET("/admin/all-sessions", h.AdminSessions)

	r.GET("/actividades-descanso", h.RestActivities)
	r.POST("/registrar-descanso", h.LogRestActivity)

	r.GET("/api/health", h.Health)
	r.GET("/api/metrics", h.MetricsSnapshot)
	r.GET("/ws", func(c *gin.Context) { h.hub.Serve(c.Writer, c.Request) })
}

func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return false
	}
	return true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")
	if errors.Is(err, services.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Credenciales incorrectas"})
		return
	}
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("[request_id=%s] %v", requestID, err)
	} else {
		h.logger.Warnf("[request_id=%s] %v", requestID, err)
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}

func sessionIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("sesion_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid sesion_id"})
		return 0, false
	}
	return id, true
}

// --- auth ---

func (h *Handler) RegisterUser(c *gin.Context) {
	var req models.RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.auth.Register(c.Request.Context(), &req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Usuario registrado correctamente"})
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mensaje": "Login exitoso",
		"usuario": gin.H{
			"id":       user.ID,
			"nombre":   user.Nombre,
			"apellido": user.Apellido,
			"rol":      user.Rol,
		},
	})
}

// --- session lifecycle ---

func (h *Handler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.sessions.OpenSession(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sesion_id": id})
}

func (h *Handler) SaveFatigue(c *gin.Context) {
	var req models.FatigueResultRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.sessions.IngestTerminalMeasurement(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mensaje":     "Sesión finalizada y guardada correctamente",
		"sesion_id":   result.SesionID,
		"diagnostico": result.Diagnostico,
	})
}

func (h *Handler) EndSession(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	if err := h.sessions.EndSession(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Sesión finalizada"})
}

func (h *Handler) GetOrCreateDiagnosis(c *gin.Context) {
	var req models.DetailRequest
	if !h.bind(c, &req) {
		return
	}
	diag, err := h.sessions.ResolveDiagnosis(c.Request.Context(), req.SesionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", diag)
}

// --- read side ---

func (h *Handler) UserHistory(c *gin.Context) {
	var req models.DashboardRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.history.UserHistory(c.Request.Context(), req.UsuarioID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SessionDetail(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	detail, err := h.history.SessionDetail(c.Request.Context(), id)
	if apperrors.IsNotFound(err) {
		// Old client expects 200 with an error field here.
		c.JSON(http.StatusOK, gin.H{"error": "Sesión no encontrada"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) SessionStages(c *gin.Context) {
	var req models.DetailRequest
	if !h.bind(c, &req) {
		return
	}
	stages, err := h.history.SessionStages(c.Request.Context(), req.SesionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *Handler) AdminSessions(c *gin.Context) {
	rows, err := h.history.AllSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.AdminSessionRow{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sesiones": rows})
}

// --- rest activities ---

func (h *Handler) RestActivities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actividades": services.RestActivities()})
}

func (h *Handler) LogRestActivity(c *gin.Context) {
	var req models.RestLogRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.sessions.LogRestActivity(c.Request.Context(), &req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Actividad de descanso registrada", "exito": true})
}

// --- ops ---

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"active_clients": h.hub.ClientCount(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) MetricsSnapshot(c *gin.Context) {
	snap := h.metrics.Snapshot()
	snap["active_clients"] = h.hub.ClientCount()
	c.JSON(http.StatusOK, snap)
}
