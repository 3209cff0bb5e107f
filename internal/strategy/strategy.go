// Package strategy defines the Provider interface the backtest driver
// evaluates each day, and a catalog of builtin providers. Providers are
// injected explicitly; there is no global registration. A provider may
// keep per-run state, so anything running simulations concurrently must
// construct a fresh provider per run via a Factory.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"backsim/internal/models"
)

// Provider turns the visible history into one signal per day.
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// WarmUp returns the minimum number of bars the provider needs
	// before it produces meaningful signals. The driver never calls
	// Evaluate with fewer bars than this.
	WarmUp() int

	// Evaluate returns the signal for the last bar of view. The view is
	// the truncated history up to and including today; the provider can
	// never see past it.
	Evaluate(ctx context.Context, view []models.Bar) (models.Signal, error)
}

// Factory constructs a fresh Provider for one simulation run.
type Factory func() Provider

// Catalog is an explicit, injectable collection of provider factories.
type Catalog struct {
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// DefaultCatalog returns the builtin providers trading stock.
func DefaultCatalog() *Catalog {
	return CatalogFor(models.AssetStock)
}

// CatalogFor returns the builtin providers parameterized for the given
// asset class.
func CatalogFor(asset models.AssetType) *Catalog {
	c := NewCatalog()
	c.Register("sma-cross", func() Provider { return NewSMACross(10, 20, asset) })
	c.Register("rsi-reversion", func() Provider { return NewRSIReversion(14, 30, 70, asset) })
	c.Register("momentum", func() Provider { return NewMomentum(20, 0.05, 0.10, asset) })
	c.Register("buy-hold", func() Provider { return NewBuyHold(asset) })
	return c
}

// Register adds a factory under the given name.
func (c *Catalog) Register(name string, f Factory) {
	c.factories[name] = f
}

// New constructs a fresh provider by name.
func (c *Catalog) New(name string) (Provider, error) {
	f, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, c.Names())
	}
	return f(), nil
}

// Factory returns the factory for name.
func (c *Catalog) Factory(name string) (Factory, error) {
	f, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, c.Names())
	}
	return f, nil
}

// Names returns the registered provider names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ===========================================================================
// Indicator helpers shared by the builtins
// ===========================================================================

// sma is the simple moving average of closes ending at index.
func sma(bars []models.Bar, index, period int) float64 {
	if index < period-1 {
		return 0
	}
	var sum float64
	for i := index - period + 1; i <= index; i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// rsi is the relative strength index of closes ending at index.
func rsi(bars []models.Bar, index, period int) float64 {
	if index < period {
		return 50
	}
	var gains, losses float64
	for i := index - period + 1; i <= index; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// roc is the rate of change of the close over period bars, as a
// fraction.
func roc(bars []models.Bar, index, period int) float64 {
	if index < period {
		return 0
	}
	base := bars[index-period].Close
	if base == 0 {
		return 0
	}
	return bars[index].Close/base - 1
}
