package auth

import (
	"github.com/EmpoweredVote/meresahar/internal/utils"
	"gorm.io/gorm"
)

// SessionInfo answers the middleware's session and role lookups.
type SessionInfo struct {
	DB *gorm.DB
}

func (si SessionInfo) FindSessionByID(id string) (utils.SessionData, error) {
	var session Session

	err := si.DB.First(&session, "session_id = ?", id).Error
	if err != nil {
		return utils.SessionData{}, err
	}

	return utils.SessionData{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (si SessionInfo) FindRoleByUserID(userID string) (string, error) {
	var user User

	err := si.DB.Select("role").First(&user, "user_id = ?", userID).Error
	if err != nil {
		return "", err
	}
	return user.Role, nil
}
