// Package identity resolves who the chat client acts for.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/pkg/jwt"
	"github.com/weiawesome/market-chat/pkg/log"
)

const DefaultUsername = "User"

// Config names where identity comes from. Explicit values override the
// session file.
type Config struct {
	SessionFile string `mapstructure:"session_file"`
	UserID      string `mapstructure:"user_id"`
	Username    string `mapstructure:"username"`
	AccessToken string `mapstructure:"access_token"`
}

// sessionState is the persisted login state. Ids may be stored as numbers.
type sessionState struct {
	ID          json.RawMessage `json:"id"`
	Username    string          `json:"username"`
	AccessToken string          `json:"accessToken"`
}

// Load builds the identity from the session file, explicit overrides and,
// for anything still missing, the access token's claims.
func Load(cfg Config) (domain.Identity, error) {
	var who domain.Identity

	if cfg.SessionFile != "" {
		st, err := readSession(cfg.SessionFile)
		if err != nil {
			return domain.Identity{}, err
		}
		who = st
	}

	if cfg.UserID != "" {
		who.UserID = cfg.UserID
	}
	if cfg.Username != "" {
		who.Username = cfg.Username
	}
	if cfg.AccessToken != "" {
		who.AccessToken = cfg.AccessToken
	}

	if who.AccessToken != "" && (who.UserID == "" || who.Username == "") {
		fillFromToken(&who)
	}
	if who.Username == "" {
		who.Username = DefaultUsername
	}
	return who, nil
}

func readSession(path string) (domain.Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Identity{}, nil
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("read session file: %w", err)
	}

	var st sessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.Identity{}, fmt.Errorf("parse session file %s: %w", path, err)
	}

	// Same rule as senderId on the wire, so own messages are recognized.
	id, err := domain.ParseID(st.ID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("parse session file %s: id: %w", path, err)
	}

	return domain.Identity{
		UserID:      id,
		Username:    st.Username,
		AccessToken: st.AccessToken,
	}, nil
}

func fillFromToken(who *domain.Identity) {
	l := log.L()

	claims, err := jwt.ParseUnverified(who.AccessToken)
	if err != nil {
		l.Warn().Err(err).Msg("access token is not a readable jwt")
		return
	}
	if err := jwt.CheckExpiry(claims, time.Now()); err != nil {
		l.Warn().Err(err).Msg("access token looks expired, the server may reject it")
	}

	if who.UserID == "" {
		who.UserID = claims.EffectiveUserID()
	}
	if who.Username == "" {
		who.Username = claims.Username
	}
}

// Save writes who as the session file at path.
func Save(path string, who domain.Identity) error {
	data, err := json.MarshalIndent(who, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
