package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed describes restaurants, their menus and staff to load at startup.
//
//	restaurants:
//	  - id: 1
//	    trade_name: Cantina
//	    service_fee_pct: "0.10"
//	    currency: BRL
//	    menu:
//	      - {id: 1, name: Feijoada, price: "42.00"}
//	    staff:
//	      - {user_id: "123", role: GERENTE}
type Seed struct {
	Restaurants []SeedRestaurant `yaml:"restaurants"`
}

type SeedRestaurant struct {
	ID            int64          `yaml:"id"`
	TradeName     string         `yaml:"trade_name"`
	ServiceFeePct string         `yaml:"service_fee_pct"`
	Currency      string         `yaml:"currency"`
	Menu          []SeedMenuItem `yaml:"menu"`
	Staff         []SeedStaff    `yaml:"staff"`
}

type SeedMenuItem struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Inactive bool   `yaml:"inactive"`
}

type SeedStaff struct {
	UserID string `yaml:"user_id"`
	Role   string `yaml:"role"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, r := range seed.Restaurants {
		if r.TradeName == "" {
			return nil, fmt.Errorf("restaurant %d: trade_name is required", i)
		}
		for j, m := range r.Menu {
			if m.Name == "" || m.Price == "" {
				return nil, fmt.Errorf("restaurant %q menu item %d: name and price are required", r.TradeName, j)
			}
		}
		for j, s := range r.Staff {
			if s.UserID == "" {
				return nil, fmt.Errorf("restaurant %q staff %d: user_id is required", r.TradeName, j)
			}
		}
	}
	return &seed, nil
}
