package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	if subject == SubjectTenantInvalidated {
		var p TenantInvalidatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TenantID <= 0 || p.Subdomain == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("tenant_id and subdomain are required"))
		}
		return nil
	}
	if !strings.HasPrefix(subject, SubjectActions+".") || strings.HasSuffix(subject, DLQSuffix) {
		return nil
	}

	var p ActionLoggedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if p.EventID == "" || p.ActionType == "" {
		return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("event_id and action_type are required"))
	}
	return nil
}
