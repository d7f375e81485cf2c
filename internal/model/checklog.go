package model

// Check log entry types, one per kind of investigation target.
const (
	CheckUser     = "user"
	CheckIP       = "ip"
	CheckIPXFF    = "ip-xff"
	CheckRange    = "range"
	CheckRangeXFF = "range-xff"
)

// CheckLogEntry records that a reviewer investigated a target.
type CheckLogEntry struct {
	ID         int64  `json:"id" db:"cul_id"`
	Timestamp  string `json:"timestamp" db:"cul_timestamp"`
	Reviewer   string `json:"reviewer" db:"cul_actor_name"`
	Type       string `json:"type" db:"cul_type"`
	Target     string `json:"target" db:"cul_target"`
	Reason     string `json:"reason" db:"cul_reason"`
	RangeStart string `json:"range_start,omitempty" db:"cul_range_start"`
	RangeEnd   string `json:"range_end,omitempty" db:"cul_range_end"`
	ClientIP   string `json:"client_ip,omitempty" db:"cul_client_ip"`
}
