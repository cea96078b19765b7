package hierarchy

// Kind discriminates the two actor types sharing the id namespace.
type Kind string

const (
	// KindOperator marks interior nodes grouping machines and sub-operators.
	KindOperator Kind = "OPERATOR"
	// KindMachine marks leaf nodes representing billable terminals.
	KindMachine Kind = "MACHINE"
)

// Activity is the period-scoped classification of a machine.
type Activity string

const (
	// ActivityUnknown means classification has not run or could not complete.
	ActivityUnknown Activity = "UNKNOWN"
	// ActivityActive means the machine was commercially active in the period.
	ActivityActive Activity = "ACTIVE"
	// ActivityInactive means the machine was not active in the period.
	ActivityInactive Activity = "INACTIVE"
)

// SalesTotal is a retrieved count/amount pair for one payment method.
// A nil *SalesTotal means no data retrieved yet, distinct from a zero total.
type SalesTotal struct {
	Count  int64
	Amount float64
}

// DeviceMeta carries terminal hardware details returned alongside sales rows.
type DeviceMeta struct {
	DTUSerial    string
	VPOSSerial   string
	SIMSerial    string
	RSSI         *int
	DTUFirmware  string
	VPOSFirmware string
}

// IsVPOSTouch reports whether the terminal is a combined VPOS touch unit
// rather than a separate DTU + VPOS pair.
func (d DeviceMeta) IsVPOSTouch() bool {
	return d.DTUSerial != "" && d.DTUSerial == d.VPOSSerial
}

// SignalQuality maps an RSSI reading to the vendor's quality bands.
func (d DeviceMeta) SignalQuality() string {
	if d.RSSI == nil {
		return "Unknown"
	}
	rssi := *d.RSSI
	switch {
	case rssi < 7:
		return "Unusable"
	case rssi < 11:
		return "Poor"
	case rssi < 15:
		return "Average"
	case rssi < 20:
		return "Good"
	case rssi != 31:
		return "Excellent"
	default:
		return "Perfect or error"
	}
}

// Actor is a node in the operator/machine hierarchy. Implemented by
// *Operator and *Machine only.
type Actor interface {
	ActorID() string
	ParentID() string
	DisplayName() string
	Kind() Kind
	// ActiveNow is the vendor-reported current status, independent of any
	// reporting period.
	ActiveNow() bool
}

// Operator is an interior node. Its sales figures are always derived from
// machine descendants, never stored.
type Operator struct {
	ID        string
	Parent    string
	Name      string
	CurActive bool
}

// ActorID implements Actor.
func (o *Operator) ActorID() string { return o.ID }

// ParentID implements Actor.
func (o *Operator) ParentID() string { return o.Parent }

// DisplayName implements Actor.
func (o *Operator) DisplayName() string { return o.Name }

// Kind implements Actor.
func (o *Operator) Kind() Kind { return KindOperator }

// ActiveNow implements Actor.
func (o *Operator) ActiveNow() bool { return o.CurActive }

// Machine is a leaf node representing a billable terminal.
type Machine struct {
	ID        string
	Parent    string
	Name      string
	CurActive bool

	// Activity is populated by the activity inferencer for a reporting
	// period. It stays ActivityUnknown until classification runs.
	Activity Activity

	Device DeviceMeta

	// Cash and Card hold fetched sales totals. Nil means no data yet.
	Cash *SalesTotal
	Card *SalesTotal
}

// ActorID implements Actor.
func (m *Machine) ActorID() string { return m.ID }

// ParentID implements Actor.
func (m *Machine) ParentID() string { return m.Parent }

// DisplayName implements Actor.
func (m *Machine) DisplayName() string { return m.Name }

// Kind implements Actor.
func (m *Machine) Kind() Kind { return KindMachine }

// ActiveNow implements Actor.
func (m *Machine) ActiveNow() bool { return m.CurActive }
