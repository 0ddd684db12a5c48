package domain

import "time"

// VerificationStatus is the aggregate verification state of a sending
// identity, and also the state of each individual DNS record.
type VerificationStatus string

const (
	VerificationNotStarted VerificationStatus = "not_started"
	VerificationPending    VerificationStatus = "pending"
	VerificationSuccess    VerificationStatus = "success"
	VerificationFailed     VerificationStatus = "failed"
)

// RecordKind identifies what a DNS record proves.
type RecordKind string

const (
	RecordDKIM        RecordKind = "dkim"
	RecordMailFromMX  RecordKind = "mail_from_mx"
	RecordMailFromSPF RecordKind = "mail_from_spf"
	RecordTracking    RecordKind = "tracking"
)

// DNSRecord is one DNS record the customer must publish to verify an
// identity. Name/Value are exactly what the customer should copy into
// their DNS zone.
type DNSRecord struct {
	Kind     RecordKind         `json:"kind"`
	Type     string             `json:"type"` // CNAME, MX, TXT
	Name     string             `json:"name"`
	Value    string             `json:"value"`
	Priority int                `json:"priority,omitempty"`
	TTL      int                `json:"ttl"`
	Status   VerificationStatus `json:"status"`
}

// Identity is a sending domain bound to a project. Exactly one identity
// exists per (project, domain) pair.
type Identity struct {
	ID               string             `json:"id" db:"id"`
	ProjectID        string             `json:"project_id" db:"project_id"`
	Domain           string             `json:"domain" db:"domain"`
	MailFromDomain   *string            `json:"mail_from_domain,omitempty" db:"mail_from_domain"`
	Status           VerificationStatus `json:"status" db:"status"`
	Records          []DNSRecord        `json:"records" db:"records"`
	ConfigurationSet string             `json:"configuration_set" db:"configuration_set"`
	OpenTracking     bool               `json:"open_tracking" db:"open_tracking"`
	ClickTracking    bool               `json:"click_tracking" db:"click_tracking"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// IsVerified reports whether the identity may be used for sending.
func (i *Identity) IsVerified() bool {
	return i.Status == VerificationSuccess
}

// AggregateStatus derives the identity-level verification state from its
// record list. The rule is total: every record success → success; any
// record failed → failed; an empty list → not started; anything else is
// still pending.
func AggregateStatus(records []DNSRecord) VerificationStatus {
	if len(records) == 0 {
		return VerificationNotStarted
	}
	allSuccess := true
	for _, r := range records {
		if r.Status == VerificationFailed {
			return VerificationFailed
		}
		if r.Status != VerificationSuccess {
			allSuccess = false
		}
	}
	if allSuccess {
		return VerificationSuccess
	}
	return VerificationPending
}
