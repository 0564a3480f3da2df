package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"metabolitics-api/models"
)

// Owner beschreibt, wem die Datensätze einer Einreichung zugeordnet werden.
type Owner struct {
	UserID      uint
	Email       string
	NotifyEmail string
}

// OwnerResolver bestimmt den Besitzer einer Einreichung.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, db *gorm.DB, clean *CleanSubmission) (Owner, error)
}

// AuthenticatedOwner ordnet alles dem per API-Key aufgelösten Benutzer zu.
type AuthenticatedOwner struct {
	User *models.User
}

func (o AuthenticatedOwner) ResolveOwner(_ context.Context, _ *gorm.DB, _ *CleanSubmission) (Owner, error) {
	if o.User == nil {
		return Owner{}, ErrNotAuthorized
	}
	return Owner{UserID: o.User.ID, Email: o.User.Email}, nil
}

// PublicOwner nutzt ein festes Fallback-Konto; die E-Mail des Einreichers landet am Datensatz.
type PublicOwner struct {
	FallbackEmail string
}

func (o PublicOwner) ResolveOwner(ctx context.Context, db *gorm.DB, clean *CleanSubmission) (Owner, error) {
	if clean.Email == "" {
		return Owner{}, ErrEmailRequired
	}
	var fallback models.User
	err := db.WithContext(ctx).Where("email = ?", o.FallbackEmail).First(&fallback).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Owner{}, fmt.Errorf("public owner account %q missing", o.FallbackEmail)
		}
		return Owner{}, fmt.Errorf("load public owner: %w", err)
	}
	return Owner{UserID: fallback.ID, Email: clean.Email, NotifyEmail: clean.Email}, nil
}
