// Package domain defines the core data types shared across the policy,
// access, origin, tunnel, and manager layers: sessions, manifests, and
// audit events.
package domain

import "time"

// SessionType distinguishes a port exposure from a files exposure.
type SessionType string

const (
	SessionTypePort  SessionType = "port"
	SessionTypeFiles SessionType = "files"
)

// SessionStatus is a node in the session state machine.
type SessionStatus string

const (
	StatusStarting SessionStatus = "starting"
	StatusRunning  SessionStatus = "running"
	StatusStopped  SessionStatus = "stopped"
	StatusError    SessionStatus = "error"
	StatusExpired  SessionStatus = "expired"
)

// Terminal reports whether status has no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusStopped, StatusError, StatusExpired:
		return true
	default:
		return false
	}
}

// AccessMode is the authorization scheme applied at an origin.
type AccessMode string

const (
	AccessToken AccessMode = "token"
	AccessBasic AccessMode = "basic"
	AccessNone  AccessMode = "none"
)

// Presentation controls how the static file origin renders a response.
type Presentation string

const (
	PresentationPreview Presentation = "preview"
	PresentationRaw     Presentation = "raw"
	PresentationDefault Presentation = "download"
)

// FilesMode selects plain serving versus a single zip bundle.
type FilesMode string

const (
	FilesModeNormal FilesMode = "normal"
	FilesModeZip    FilesMode = "zip"
)

// AccessInfo carries the generated credentials for a protected session.
// Token is set only when Mode == AccessToken; Username/Password only when
// Mode == AccessBasic.
type AccessInfo struct {
	Mode     AccessMode `json:"mode"`
	Token    string     `json:"token,omitempty"`
	Username string     `json:"username,omitempty"`
	Password string     `json:"password,omitempty"`
}

// Masked returns a copy with secrets replaced by a masked display form
// ("abc***ef"), safe to place in a response payload.
func (a AccessInfo) Masked() AccessInfo {
	m := a
	if a.Token != "" {
		m.Token = maskSecret(a.Token)
	}
	if a.Password != "" {
		m.Password = maskSecret(a.Password)
	}
	return m
}

func maskSecret(s string) string {
	if len(s) <= 5 {
		return "***"
	}
	return s[:3] + "***" + s[len(s)-2:]
}

// LogComponent identifies the subsystem that produced a log line.
type LogComponent string

const (
	LogTunnel  LogComponent = "tunnel"
	LogOrigin  LogComponent = "origin"
	LogManager LogComponent = "manager"
)

// LogEntry is one line in a session's bounded ring buffer.
type LogEntry struct {
	Timestamp time.Time    `json:"ts"`
	Component LogComponent `json:"component"`
	Line      string       `json:"line"`
}

// Stats tracks monotonic usage counters for a session.
type Stats struct {
	Requests     int64     `json:"requests"`
	Downloads    int64     `json:"downloads"`
	BytesSent    int64     `json:"bytesSent"`
	LastAccessAt time.Time `json:"lastAccessAt"`
}

// Session is one exposure record. All mutation of a live Session must
// go through the manager's per-session lock; callers outside that
// package only ever see a Snapshot.
type Session struct {
	ID     string
	Type   SessionType
	Status SessionStatus

	CreatedAt time.Time
	ExpiresAt time.Time
	TTLSecs   int

	// port exposures
	SourcePort int
	OriginPort int // differs from SourcePort when a proxy origin is inserted

	// files exposures
	WorkspaceDir string
	Mode         FilesMode
	Presentation Presentation
	Manifest     []ManifestEntry

	PublicURL string
	LocalURL  string

	Access         AccessInfo
	ProtectOrigin  bool
	AllowlistPaths []string

	MaxDownloads int // 0 means unbounded

	Stats Stats
	Logs  *LogRing

	LastError string

	ProcessPID int
}

// Snapshot is the read-only, externally shared view of a Session.
type Snapshot struct {
	ID            string          `json:"id"`
	Type          SessionType     `json:"type"`
	Status        SessionStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	SourcePort    int             `json:"sourcePort,omitempty"`
	OriginPort    int             `json:"originPort,omitempty"`
	WorkspaceDir  string          `json:"workspaceDir,omitempty"`
	Mode          FilesMode       `json:"mode,omitempty"`
	Presentation  Presentation    `json:"presentation,omitempty"`
	Manifest      []ManifestEntry `json:"manifest,omitempty"`
	PublicURL     string          `json:"publicUrl,omitempty"`
	LocalURL      string          `json:"localUrl,omitempty"`
	Access        AccessInfo      `json:"accessInfo"`
	ProtectOrigin bool            `json:"protectOrigin"`
	MaxDownloads  int             `json:"maxDownloads,omitempty"`
	Stats         Stats           `json:"stats"`
	LastError     string          `json:"lastError,omitempty"`
}

// Snapshot copies the fields safe to expose outside the manager, masking
// secrets in AccessInfo.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:            s.ID,
		Type:          s.Type,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		SourcePort:    s.SourcePort,
		OriginPort:    s.OriginPort,
		WorkspaceDir:  s.WorkspaceDir,
		Mode:          s.Mode,
		Presentation:  s.Presentation,
		Manifest:      s.Manifest,
		PublicURL:     s.PublicURL,
		LocalURL:      s.LocalURL,
		Access:        s.Access.Masked(),
		ProtectOrigin: s.ProtectOrigin,
		MaxDownloads:  s.MaxDownloads,
		Stats:         s.Stats,
		LastError:     s.LastError,
	}
}

// PersistedSession is the reduced per-element shape written to
// sessions.json on every lifecycle transition.
type PersistedSession struct {
	ID           string        `json:"id"`
	Type         SessionType   `json:"type"`
	Status       SessionStatus `json:"status"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	WorkspaceDir string        `json:"workspaceDir,omitempty"`
	ProcessPID   int           `json:"processPid,omitempty"`
}

// ManifestEntry describes one file inside a session's workspace.
type ManifestEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	RelativeURL string    `json:"relative_url"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// AuditEvent is one append-only record in audit.jsonl.
type AuditEvent struct {
	Timestamp time.Time      `json:"ts"`
	Event     string         `json:"event"`
	ID        string         `json:"id,omitempty"`
	Type      SessionType    `json:"type,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Audit event kinds.
const (
	EventExposureStarted = "exposure_started"
	EventExposureStopped = "exposure_stopped"
	EventExposureExpired = "exposure_expired"
	EventPolicyUpdated   = "policy_updated"
	EventGCRun           = "gc_run"
	EventAuditExported   = "audit_exported"
)
