package app

import (
	"context"
	"errors"
	"fmt"

	"polymarket-pro/internal/alerting"
)

// SimulateAlert runs one rule evaluation against a synthetic price, driving
// the configured notification channel end to end.
func (a *App) SimulateAlert(ctx context.Context, direction alerting.Direction, threshold, price float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	engine := alerting.NewEngine(notifier, a.Logger)
	rule, err := engine.Add(direction, threshold, "simulated")
	if err != nil {
		return err
	}

	engine.Evaluate(ctx, price)

	rules := engine.Rules()
	for _, r := range rules {
		if r.ID == rule.ID && r.Active {
			return fmt.Errorf("price %.3f did not cross the %s %.3f threshold", price, direction, threshold)
		}
	}
	return nil
}
