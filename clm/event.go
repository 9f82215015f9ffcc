package clm

// Kind labels the outcome of a rotation attempt.
type Kind string

const (
	KindRotateOK     Kind = "rotate_ok"
	KindRotateFailed Kind = "rotate_failed"
)

// Role identifies which side of the connection attempted the rotation.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Reason records what triggered the attempt.
type Reason string

const (
	ReasonTimer  Reason = "timer"
	ReasonManual Reason = "manual"
)

// Detail describes how a rotation attempt was resolved: which strategy was
// committed to (empty when none applied), which candidate manager surfaces
// were discovered, and a free-form note (call error, absence note).
type Detail struct {
	Strategy string   `json:"strategy,omitempty"`
	Found    []string `json:"found"`
	Note     string   `json:"note"`

	// Issued carries the newly issued identifier when the committed
	// strategy returns one.
	Issued string `json:"issued,omitempty"`

	// Diag holds raw diagnostic fields (hex-encoded identifiers,
	// addresses) snapshotted when no rotation surface was found.
	Diag map[string]string `json:"diag,omitempty"`
}

// Event is one rotation-attempt record. Created when an attempt concludes,
// appended once, immutable thereafter; the log is a pure history.
type Event struct {
	Kind   Kind   `json:"event"`
	Role   Role   `json:"role"`
	Reason Reason `json:"reason"`
	Detail Detail `json:"detail"`

	// TS is seconds since epoch, stamped by the event log at append time.
	TS float64 `json:"ts"`
}
