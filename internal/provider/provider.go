// Package provider defines the contracts the aggregation engine expects from
// the remote telemetry portal. The portal's own session handling and page
// scraping live behind these interfaces and stay out of the engine.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/vendsight/vendsight/internal/hierarchy"
)

// ErrTransient marks a connection-level failure worth retrying.
var ErrTransient = errors.New("provider: transient fetch failure")

// PaymentMethod selects which sales ledger a query covers.
type PaymentMethod string

const (
	// MethodCash covers coin/bill sales.
	MethodCash PaymentMethod = "cash"
	// MethodCard covers cashless sales.
	MethodCard PaymentMethod = "card"
)

// ActorRecord is one row of the full hierarchy listing.
type ActorRecord struct {
	ID        string
	ParentID  string
	Name      string
	Kind      hierarchy.Kind
	ActiveNow bool
}

// SalesRecord is one machine's totals inside a subtree sales response. The
// machine id travels with the record: results are correlated by identity,
// never by position.
type SalesRecord struct {
	MachineID string
	Count     int64
	Amount    float64
	// Device is populated on cash responses, which carry terminal metadata
	// as a side effect.
	Device *hierarchy.DeviceMeta
}

// Transition is one status flip in a machine's event history.
type Transition string

const (
	// TransitionActivation marks a change to active.
	TransitionActivation Transition = "ACTIVATION"
	// TransitionDeactivation marks a change to not active.
	TransitionDeactivation Transition = "DEACTIVATION"
)

// HistoryEvent is a timestamped status transition.
type HistoryEvent struct {
	At         time.Time
	Transition Transition
}

// ProductRecord is one selection-to-product mapping on a machine. Mapped is
// false when the machine reports a selection the portal catalogue cannot
// resolve to a product.
type ProductRecord struct {
	Selection string
	Name      string
	Price     float64
	Mapped    bool
}

// Fetcher retrieves hierarchy and sales data.
type Fetcher interface {
	// FetchActorList retrieves the full operator/machine hierarchy.
	FetchActorList(ctx context.Context) ([]ActorRecord, error)
	// FetchSales retrieves per-machine totals for one payment method across
	// the subtree rooted at actorID, over [start, end].
	FetchSales(ctx context.Context, actorID string, method PaymentMethod, start, end time.Time) ([]SalesRecord, error)
}

// HistoryFetcher retrieves a machine's status transition log, possibly empty.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, machineID string) ([]HistoryEvent, error)
}

// ProductFetcher retrieves a machine's selection-to-product map.
type ProductFetcher interface {
	FetchProductMap(ctx context.Context, machineID string) ([]ProductRecord, error)
}

// Client bundles the fetch surfaces of the portal.
type Client interface {
	Fetcher
	HistoryFetcher
	ProductFetcher
}
