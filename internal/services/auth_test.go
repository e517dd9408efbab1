package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CesarGoto1/SecurityEye/internal/apperrors"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/models"
	"github.com/CesarGoto1/SecurityEye/internal/storage"
)

func TestRegisterAndLogin(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewAuthService(store, logging.NewNop())
	ctx := context.Background()

	req := &models.RegisterRequest{
		Nombre:     "Luis",
		Apellido:   "Mora",
		Correo:     "luis@example.com",
		Contrasena: "super-secreta",
	}
	require.NoError(t, svc.Register(ctx, req))

	// Password is stored hashed, never plaintext.
	u, err := store.GetUserByCorreo(ctx, "luis@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secreta", u.PasswordHash)
	assert.NotEmpty(t, u.PasswordHash)

	logged, err := svc.Login(ctx, &models.LoginRequest{
		Correo:     "luis@example.com",
		Contrasena: "super-secreta",
	})
	require.NoError(t, err)
	assert.Equal(t, "Luis", logged.Nombre)
	assert.Equal(t, "usuario", logged.Rol)

	u, err = store.GetUserByCorreo(ctx, "luis@example.com")
	require.NoError(t, err)
	assert.NotNil(t, u.UltimoAcceso)
}

func TestRegisterDuplicateCorreo(t *testing.T) {
	svc := NewAuthService(storage.NewMemoryStore(), logging.NewNop())
	ctx := context.Background()

	req := &models.RegisterRequest{
		Nombre:     "Luis",
		Apellido:   "Mora",
		Correo:     "luis@example.com",
		Contrasena: "super-secreta",
	}
	require.NoError(t, svc.Register(ctx, req))

	err := svc.Register(ctx, req)
	assert.True(t, apperrors.IsValidation(err))
}

func TestLoginWrongPassword(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewAuthService(store, logging.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, &models.RegisterRequest{
		Nombre:     "Luis",
		Apellido:   "Mora",
		Correo:     "luis@example.com",
		Contrasena: "super-secreta",
	}))

	_, err := svc.Login(ctx, &models.LoginRequest{
		Correo:     "luis@example.com",
		Contrasena: "equivocada",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc := NewAuthService(storage.NewMemoryStore(), logging.NewNop())

	_, err := svc.Login(context.Background(), &models.LoginRequest{
		Correo:     "nadie@example.com",
		Contrasena: "lo-que-sea",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginAdminRole(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewAuthService(store, logging.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, &models.RegisterRequest{
		Nombre:     "Root",
		Apellido:   "Admin",
		Correo:     "admin@example.com",
		Contrasena: "super-secreta",
	}))
	store.SetUserRol("admin@example.com", "Administrador")

	u, err := svc.Login(ctx, &models.LoginRequest{Correo: "admin@example.com", Contrasena: "super-secreta"})
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Rol)
}
