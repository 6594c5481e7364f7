// Package seed supplies the static bidder and vehicle catalog a session is
// constructed from. The catalog comes from a YAML file or from built-in
// defaults; it is loaded once and never re-fetched at runtime.
package seed

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/lanebid/auction-engine/internal/model"
)

var (
	ErrNoVehicles  = errors.New("seed: catalog needs at least one vehicle")
	ErrNoBidders   = errors.New("seed: catalog needs at least one bidder")
	ErrDuplicateID = errors.New("seed: duplicate id in catalog")
	ErrInvalidVIN  = errors.New("seed: invalid VIN")
	ErrInvalidSeed = errors.New("seed: invalid catalog entry")
)

// vinRegex matches 11-17 character VINs. I, O, and Q are never used in
// VINs to avoid confusion with 1 and 0.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{11,17}$`)

// BidderSeed is one bidder entry in the catalog file. Money is whole
// dollars in the file and converted to decimals at the boundary.
type BidderSeed struct {
	ID          string `yaml:"id"`
	Badge       string `yaml:"badge"`
	Name        string `yaml:"name"`
	CreditLimit int64  `yaml:"credit_limit"`
}

// VehicleSeed is one run-list entry in the catalog file. A zero
// target_price marks a no-reserve lot.
type VehicleSeed struct {
	ID          string `yaml:"id"`
	Year        int    `yaml:"year"`
	Make        string `yaml:"make"`
	Model       string `yaml:"model"`
	VIN         string `yaml:"vin"`
	StartingBid int64  `yaml:"starting_bid"`
	TargetPrice int64  `yaml:"target_price"`
}

// Catalog is the validated seed data for one auction session.
type Catalog struct {
	Bidders  []BidderSeed  `yaml:"bidders"`
	Vehicles []VehicleSeed `yaml:"vehicles"`
}

// Load reads and validates a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the built-in catalog: three lanes of bidders and a
// three-vehicle run list, the last lot no-reserve.
func Default() *Catalog {
	return &Catalog{
		Bidders: []BidderSeed{
			{ID: "user-1", Badge: "lane-7", Name: "Lane 7 Dealer", CreditLimit: 50000},
			{ID: "user-2", Badge: "lane-12", Name: "Lane 12 Dealer", CreditLimit: 40000},
			{ID: "user-3", Badge: "remote-44", Name: "Remote Buyer 44", CreditLimit: 60000},
		},
		Vehicles: []VehicleSeed{
			{ID: "veh-001", Year: 2019, Make: "Toyota", Model: "Camry", VIN: "1A2B3C4D5E6F7G8H9",
				StartingBid: 8500, TargetPrice: 11000},
			{ID: "veh-002", Year: 2021, Make: "Ford", Model: "F-150", VIN: "9H8G7F6E5D4C3B2A1",
				StartingBid: 15000, TargetPrice: 18500},
			{ID: "veh-003", Year: 2018, Make: "Honda", Model: "Civic", VIN: "2C3D4E5F6G7H8J9K0",
				StartingBid: 6000},
		},
	}
}

// Validate checks the catalog for structural problems: empty sections,
// duplicate ids, malformed VINs, non-positive money.
func (c *Catalog) Validate() error {
	if len(c.Vehicles) == 0 {
		return ErrNoVehicles
	}
	if len(c.Bidders) == 0 {
		return ErrNoBidders
	}

	ids := make(map[string]bool, len(c.Bidders)+len(c.Vehicles))
	for _, b := range c.Bidders {
		if b.ID == "" {
			return fmt.Errorf("%w: bidder with empty id", ErrInvalidSeed)
		}
		if ids[b.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, b.ID)
		}
		ids[b.ID] = true
		if b.CreditLimit <= 0 {
			return fmt.Errorf("%w: bidder %s needs a positive credit limit", ErrInvalidSeed, b.ID)
		}
	}
	for _, v := range c.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("%w: vehicle with empty id", ErrInvalidSeed)
		}
		if ids[v.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
		}
		ids[v.ID] = true
		if !vinRegex.MatchString(v.VIN) {
			return fmt.Errorf("%w: %s (%s)", ErrInvalidVIN, v.VIN, v.ID)
		}
		if v.StartingBid <= 0 {
			return fmt.Errorf("%w: vehicle %s needs a positive starting bid", ErrInvalidSeed, v.ID)
		}
		if v.TargetPrice > 0 && v.TargetPrice < v.StartingBid {
			return fmt.Errorf("%w: vehicle %s target below starting bid", ErrInvalidSeed, v.ID)
		}
	}
	return nil
}

// BidderModels converts the catalog to engine bidders with zero credit in use.
func (c *Catalog) BidderModels() []model.Bidder {
	bidders := make([]model.Bidder, 0, len(c.Bidders))
	for _, b := range c.Bidders {
		bidders = append(bidders, model.Bidder{
			ID:          b.ID,
			Badge:       b.Badge,
			Name:        b.Name,
			CreditLimit: decimal.NewFromInt(b.CreditLimit),
			CreditUsed:  decimal.Zero,
		})
	}
	return bidders
}

// VehicleModels converts the catalog to engine vehicles in run-list order.
func (c *Catalog) VehicleModels() []model.Vehicle {
	vehicles := make([]model.Vehicle, 0, len(c.Vehicles))
	for _, v := range c.Vehicles {
		vehicles = append(vehicles, model.Vehicle{
			ID:          v.ID,
			Year:        v.Year,
			Make:        v.Make,
			Model:       v.Model,
			VIN:         v.VIN,
			StartingBid: decimal.NewFromInt(v.StartingBid),
			TargetPrice: decimal.NewFromInt(v.TargetPrice),
		})
	}
	return vehicles
}
