package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/careloop/patient-email-api/internal/common"
)

// Permission claims consumed by this service. The host platform grants them.
const (
	PermManagePatientEmails = "can_manage_patient_emails"
	PermSendPatientEmails   = "can_send_patient_emails"
)

// Verifier validates access tokens minted by the host platform and extracts
// the actor claims this service cares about.
type Verifier struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	Secret    string
	Issuer    string
	ClockSkew time.Duration
}

// NewVerifier constructs a Verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Verifier{
		secret:    []byte(cfg.Secret),
		issuer:    strings.TrimSpace(cfg.Issuer),
		clockSkew: skew,
		now:       time.Now,
	}, nil
}

// Parse validates the token signature and registered claims and returns the actor.
func (v *Verifier) Parse(token string) (common.Actor, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.clockSkew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseString(token, opts...)
	if err != nil {
		return common.Actor{}, common.NewAppError("UNAUTHORIZED", "invalid token", 401, fmt.Errorf("auth: parse token: %w", err))
	}

	actor := common.Actor{UserID: parsed.Subject()}
	if org, ok := parsed.Get("org"); ok {
		if s, ok := org.(string); ok {
			actor.OrganizationID = strings.TrimSpace(s)
		}
	}
	if perms, ok := parsed.Get("permissions"); ok {
		actor.Permissions = toStringSlice(perms)
	}
	if actor.UserID == "" {
		return common.Actor{}, common.NewAppError("UNAUTHORIZED", "token missing subject", 401, nil)
	}
	if actor.OrganizationID == "" {
		return common.Actor{}, common.NewAppError("UNAUTHORIZED", "token missing organization", 401, nil)
	}
	return actor, nil
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		parts := strings.Split(vals, " ")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return nil
	}
}
