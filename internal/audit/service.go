package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/obs"
)

// Entry is one recorded console action.
type Entry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int32     `json:"status"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists and queries audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, limit, offset int32) ([]Entry, int64, error)
}

// Service records who did what on the console. Reads are never
// audited, only mutations.
type Service struct {
	Store   Store
	Enabled bool
}

// Record persists one entry. The action defaults to "METHOD route"
// and the resource is derived from the route when not given.
func (s Service) Record(ctx context.Context, actorID, action, resource, resourceID string, req *http.Request, status int) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if strings.TrimSpace(action) == "" {
		action = strings.ToUpper(req.Method) + " " + route
	}
	if strings.TrimSpace(resource) == "" {
		resource = resourceFromRoute(route)
	}
	if status == 0 {
		status = http.StatusOK
	}

	return s.Store.Insert(ctx, Entry{
		ActorID:    actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Method:     req.Method,
		Path:       req.URL.Path,
		Status:     int32(status),
		IP:         common.ClientIP(req),
		UserAgent:  req.Header.Get("User-Agent"),
	})
}

func resourceFromRoute(route string) string {
	trimmed := strings.Trim(route, "/ ")
	if trimmed == "" {
		return "unknown"
	}
	segments := strings.Split(trimmed, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	var parts []string
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ".")
}

// PGStore is the pgx-backed Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) Insert(ctx context.Context, e Entry) error {
	var actorID pgtype.UUID
	if e.ActorID != "" {
		if parsed, err := common.PGUUID(e.ActorID); err == nil {
			actorID = parsed
		}
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, resource, resource_id, method, path, status, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		actorID, e.Action, e.Resource, common.PGText(e.ResourceID),
		e.Method, e.Path, e.Status, common.PGText(e.IP), common.PGText(e.UserAgent))
	return err
}

func (s *PGStore) List(ctx context.Context, limit, offset int32) ([]Entry, int64, error) {
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, actor_id, action, resource, resource_id, method, path, status, ip, user_agent, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id, actorID pgtype.UUID
		var resourceID, ip, ua pgtype.Text
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&id, &actorID, &e.Action, &e.Resource, &resourceID,
			&e.Method, &e.Path, &e.Status, &ip, &ua, &createdAt); err != nil {
			return nil, 0, err
		}
		e.ID = common.UUIDString(id)
		e.ActorID = common.UUIDString(actorID)
		e.ResourceID = common.TextString(resourceID)
		e.IP = common.TextString(ip)
		e.UserAgent = common.TextString(ua)
		e.CreatedAt = common.TimeFromPG(createdAt)
		out = append(out, e)
	}
	return out, total, rows.Err()
}
