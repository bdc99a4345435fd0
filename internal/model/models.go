package model

import "time"

// Severity buckets used across threat feeds, geo events and incidents.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Severities lists the valid buckets in descending urgency order.
var Severities = []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// ValidSeverity reports whether s is one of the five buckets.
func ValidSeverity(s string) bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// -------------------- USER / SESSION --------------------

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"fullName" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Session is the server-side record backing a JWT. A token is only valid
// while its session row exists, is unrevoked and unexpired; revocation
// decouples session lifetime from the token's embedded expiry.
type Session struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"userId" db:"user_id"`
	TokenJTI  string     `json:"tokenJti" db:"token_jti"`
	ExpiresAt time.Time  `json:"expiresAt" db:"expires_at"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// -------------------- DEMO SLOTS / BOOKINGS --------------------

type DemoSlot struct {
	ID        string    `json:"id" db:"id"`
	Date      string    `json:"date" db:"date"`
	Time      string    `json:"time" db:"time"`
	Timezone  string    `json:"timezone" db:"timezone"`
	Capacity  int       `json:"capacity" db:"capacity"`
	Booked    int       `json:"booked" db:"booked"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Available is the remaining capacity; never negative.
func (s DemoSlot) Available() int {
	if s.Booked >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Booked
}

type DemoBooking struct {
	ID        string    `json:"id" db:"id"`
	SlotID    string    `json:"slotId" db:"slot_id"`
	FullName  string    `json:"fullName" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	Company   string    `json:"company" db:"company"`
	Attendees int       `json:"attendees" db:"attendees"`
	Notes     string    `json:"notes" db:"notes"`
	LeadRef   string    `json:"leadRef" db:"lead_ref"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// -------------------- LEADS --------------------

const (
	BandHot  = "hot"
	BandWarm = "warm"
	BandCold = "cold"
)

type Lead struct {
	Ref        string    `json:"ref" db:"ref"`
	Type       string    `json:"type" db:"type"`
	FullName   string    `json:"fullName" db:"full_name"`
	Email      string    `json:"email" db:"email"`
	Company    string    `json:"company" db:"company"`
	Score      int       `json:"score" db:"score"`
	Band       string    `json:"band" db:"band"`
	Status     string    `json:"status" db:"status"`
	Source     string    `json:"source" db:"source"`
	RawPayload string    `json:"-" db:"raw_payload"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// CRMEvent records inbound and outbound CRM traffic for a lead.
type CRMEvent struct {
	ID        int64     `json:"id" db:"id"`
	LeadRef   string    `json:"leadRef" db:"lead_ref"`
	EventType string    `json:"eventType" db:"event_type"`
	Payload   string    `json:"payload" db:"payload"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// -------------------- THREAT INTELLIGENCE --------------------

// GeoPoint is one endpoint of a threat flow.
type GeoPoint struct {
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// ThreatEvent is the canonical geo event shape every ingestion source is
// normalized into. Events are immutable once emitted and discarded on the
// next refresh cycle; no history is persisted.
type ThreatEvent struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Severity   string    `json:"severity"`
	Feed       string    `json:"feed"`
	ObservedAt time.Time `json:"observedAt"`
	Origin     GeoPoint  `json:"origin"`
	Target     GeoPoint  `json:"target"`
}

// ThreatFeedItem is a persisted threat-feed row shown in the SOC preview.
type ThreatFeedItem struct {
	ID          string    `json:"id" db:"id"`
	Threat      string    `json:"threat" db:"threat"`
	Severity    string    `json:"severity" db:"severity"`
	Source      string    `json:"source" db:"source"`
	Status      string    `json:"status" db:"status"`
	MitreTags   string    `json:"mitreTags" db:"mitre_tags"`
	PublishedAt time.Time `json:"publishedAt" db:"published_at"`
}

// -------------------- STATUS PAGE --------------------

type StatusIncident struct {
	ID          int64      `json:"id" db:"id"`
	IncidentRef string     `json:"incidentRef" db:"incident_ref"`
	Title       string     `json:"title" db:"title"`
	Status      string     `json:"status" db:"status"`
	Severity    string     `json:"severity" db:"severity"`
	StartedAt   time.Time  `json:"startedAt" db:"started_at"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
	Summary     string     `json:"summary" db:"summary"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

type StatusSnapshot struct {
	ID        int64     `json:"id" db:"id"`
	Component string    `json:"component" db:"component"`
	Status    string    `json:"status" db:"status"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// -------------------- NOTIFICATIONS --------------------

// NotificationLog records every delivery attempt, including the log-only
// fallback used when no outbound channel is configured.
type NotificationLog struct {
	ID           int64     `json:"id" db:"id"`
	EventType    string    `json:"eventType" db:"event_type"`
	Recipient    string    `json:"recipient" db:"recipient"`
	Subject      string    `json:"subject" db:"subject"`
	PayloadJSON  string    `json:"payloadJson" db:"payload_json"`
	Status       string    `json:"status" db:"status"`
	RetryCount   int       `json:"retryCount" db:"retry_count"`
	ErrorMessage string    `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// -------------------- SOC PREVIEW --------------------

type Incident struct {
	ID            string `json:"id"`
	Severity      string `json:"severity"`
	Status        string `json:"status"`
	Title         string `json:"title"`
	AffectedAsset string `json:"affectedAsset"`
	DetectedAt    string `json:"detectedAt"`
}

type Alert struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}
