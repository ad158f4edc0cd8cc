package alerting

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestEvaluateOneShotBelow(t *testing.T) {
	engine := NewEngine(nil, testLogger())
	if _, err := engine.Add(DirectionBelow, 0.55, "drop watch"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var fired []Notification
	engine.OnAlert(func(n Notification) { fired = append(fired, n) })

	for _, price := range []float64{0.60, 0.56, 0.54, 0.50} {
		engine.Evaluate(context.Background(), price)
	}

	if len(fired) != 1 {
		t.Fatalf("expected exactly one firing, got %d", len(fired))
	}
	if fired[0].Price != 0.54 {
		t.Fatalf("expected firing at 0.54, got %v", fired[0].Price)
	}

	rules := engine.Rules()
	if len(rules) != 1 || rules[0].Active {
		t.Fatalf("rule should remain registered but inactive: %#v", rules)
	}
}

func TestEvaluateAboveDirection(t *testing.T) {
	engine := NewEngine(nil, testLogger())
	if _, err := engine.Add(DirectionAbove, 0.70, ""); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var count int
	engine.OnAlert(func(Notification) { count++ })

	engine.Evaluate(context.Background(), 0.69)
	if count != 0 {
		t.Fatal("rule should not fire below threshold")
	}
	engine.Evaluate(context.Background(), 0.70)
	if count != 1 {
		t.Fatal("rule should fire at exactly the threshold")
	}
}

func TestAddValidation(t *testing.T) {
	engine := NewEngine(nil, testLogger())

	if _, err := engine.Add("sideways", 0.5, ""); err == nil {
		t.Fatal("invalid direction should be rejected")
	}
	if _, err := engine.Add(DirectionAbove, 1.5, ""); err == nil {
		t.Fatal("threshold outside [0,1] should be rejected")
	}
}

func TestRemoveRule(t *testing.T) {
	engine := NewEngine(nil, testLogger())
	rule, err := engine.Add(DirectionBelow, 0.3, "")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	engine.Remove(rule.ID)
	engine.Remove("unknown-id")

	if len(engine.Rules()) != 0 {
		t.Fatal("rule should be removed")
	}
}

func TestEvaluateConcurrentWithMutation(t *testing.T) {
	engine := NewEngine(nil, testLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			rule, _ := engine.Add(DirectionBelow, 0.1, fmt.Sprintf("r%d", i))
			if i%2 == 0 {
				engine.Remove(rule.ID)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			engine.Evaluate(context.Background(), 0.5)
		}
	}()
	wg.Wait()
}
