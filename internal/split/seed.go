package split

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tablesplit/internal/config"
	"github.com/susu3304/tablesplit/internal/ledger"
)

const defaultCurrency = "BRL"

// ApplySeed upserts the restaurants, menus and staff of a seed file.
func ApplySeed(ctx context.Context, dir Directory, seed *config.Seed) error {
	if seed == nil {
		return nil
	}
	for _, sr := range seed.Restaurants {
		pct := ledger.DefaultServiceFeePct
		if sr.ServiceFeePct != "" {
			p, err := decimal.NewFromString(sr.ServiceFeePct)
			if err != nil {
				return fmt.Errorf("restaurant %q: service_fee_pct: %w", sr.TradeName, err)
			}
			if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("restaurant %q: %w", sr.TradeName, ledger.ErrInvalidServiceFee)
			}
			pct = p
		}
		currency := strings.ToUpper(strings.TrimSpace(sr.Currency))
		if currency == "" {
			currency = defaultCurrency
		}
		r, err := dir.UpsertRestaurant(ctx, ledger.Restaurant{
			ID:            sr.ID,
			TradeName:     sr.TradeName,
			ServiceFeePct: pct,
			Currency:      currency,
		})
		if err != nil {
			return fmt.Errorf("restaurant %q: %w", sr.TradeName, err)
		}

		for _, sm := range sr.Menu {
			price, err := decimal.NewFromString(sm.Price)
			if err != nil {
				return fmt.Errorf("menu item %q: price: %w", sm.Name, err)
			}
			if price.IsNegative() {
				return fmt.Errorf("menu item %q: %w: negative price", sm.Name, ledger.ErrInvalidLineItem)
			}
			if _, err := dir.UpsertMenuItem(ctx, ledger.MenuItem{
				ID:           sm.ID,
				RestaurantID: r.ID,
				Name:         sm.Name,
				Price:        price,
				Active:       !sm.Inactive,
			}); err != nil {
				return fmt.Errorf("menu item %q: %w", sm.Name, err)
			}
		}

		for _, ss := range sr.Staff {
			role := strings.ToUpper(strings.TrimSpace(ss.Role))
			switch role {
			case "":
				role = RoleWaiter
			case RoleWaiter, RoleKitchen, RoleBar, RoleManager:
			default:
				return fmt.Errorf("staff %s: unknown role %q", ss.UserID, ss.Role)
			}
			if err := dir.UpsertStaff(ctx, Staff{RestaurantID: r.ID, UserID: ss.UserID, Role: role}); err != nil {
				return fmt.Errorf("staff %s: %w", ss.UserID, err)
			}
		}
	}
	return nil
}
