package services

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
	"github.com/CesarGoto1/SecurityEye/internal/storage"
)

// ErrInvalidCredentials maps to 401 at the transport layer.
var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthService struct {
	store  storage.Store
	logger logging.Logger
}

func NewAuthService(store storage.Store, logger logging.Logger) *AuthService {
	return &AuthService{store: store, logger: logger}
}

func (a *AuthService) Register(ctx context.Context, req *models.RegisterRequest) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Contrasena), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Persistence(err, "hash password")
	}

	_, err = a.store.CreateUser(ctx, &models.User{
		Nombre:       req.Nombre,
		Apellido:     req.Apellido,
		Correo:       req.Correo,
		PasswordHash: string(hash),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return apperrors.Validation("correo already registered")
	}
	if err != nil {
		return apperrors.Persistence(err, "create user")
	}
	a.logger.Infof("user registered: %s", req.Correo)
	return nil
}

// Login validates credentials and returns the user with its role
// normalized to "admin" or "usuario".
func (a *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	u, err := a.store.GetUserByCorreo(ctx, req.Correo)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "read user")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Contrasena)) != nil {
		return nil, ErrInvalidCredentials
	}

	if err := a.store.TouchUltimoAcceso(ctx, u.ID); err != nil {
		a.logger.Warnf("updating ultimo_acceso for user %d: %v", u.ID, err)
	}

	if u.Rol == "Administrador" {
		u.Rol = "admin"
	} else {
		u.Rol = "usuario"
	}
	a.logger.Infof("user logged in: %s", req.Correo)
	return u, nil
}
