package manager

import (
	"exposemgr/internal/access"
	"exposemgr/internal/domain"
)

// resolveAccess applies the access-mode precedence (explicit option,
// else the policy default for the exposure type) and derives
// ProtectOrigin when the caller left it unset: protected whenever the
// resolved mode is not "none".
func resolveAccess(requested domain.AccessMode, protectOverride *bool, policyDefault domain.AccessMode) (domain.AccessMode, bool) {
	mode := requested
	if mode == "" {
		mode = policyDefault
	}
	protect := mode != domain.AccessNone
	if protectOverride != nil {
		protect = *protectOverride
	}
	return mode, protect
}

// generateAccessInfo mints fresh credentials for mode. A session id
// or token is never reused across sessions.
func generateAccessInfo(mode domain.AccessMode) (domain.AccessInfo, error) {
	switch mode {
	case domain.AccessToken:
		token, err := domain.NewToken()
		if err != nil {
			return domain.AccessInfo{}, err
		}
		return domain.AccessInfo{Mode: mode, Token: token}, nil
	case domain.AccessBasic:
		password, err := domain.NewBasicPassword()
		if err != nil {
			return domain.AccessInfo{}, err
		}
		return domain.AccessInfo{Mode: mode, Username: "cfshare", Password: password}, nil
	default:
		return domain.AccessInfo{Mode: domain.AccessNone}, nil
	}
}

// accessState projects a Session's access fields into the access.State
// shape the origin-side middleware checks against.
func accessState(s *domain.Session) access.State {
	return access.State{
		Mode:           s.Access.Mode,
		Token:          s.Access.Token,
		Username:       s.Access.Username,
		Password:       s.Access.Password,
		ProtectOrigin:  s.ProtectOrigin,
		AllowlistPaths: s.AllowlistPaths,
	}
}
