package config

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestLambdaFixedPoint(t *testing.T) {
	cfg := SentinelConfig{Lambda: "0.1"}
	lambda, err := cfg.LambdaFixedPoint()
	if err != nil {
		t.Fatalf("parse lambda: %v", err)
	}
	if want := sdkmath.NewIntWithDecimal(1, 17); !lambda.Equal(want) {
		t.Fatalf("lambda = %s, want %s", lambda, want)
	}
}

func TestLambdaFixedPointRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "abc", "-0.5"} {
		cfg := SentinelConfig{Lambda: raw}
		if _, err := cfg.LambdaFixedPoint(); err == nil {
			t.Fatalf("lambda %q should be rejected", raw)
		}
	}
}

func TestValidateRejectsSamePair(t *testing.T) {
	cfg := &Config{
		Export:    ExportConfig{MaxDataPoints: 100},
		Scheduler: SchedulerConfig{Interval: 60_000_000_000},
		Sentinel:  SentinelConfig{BaseToken: "ETH", QuoteToken: "ETH", Lambda: "0.1"},
		Feed:      FeedConfig{Kind: "chainlink"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("identical base and quote tokens should be rejected")
	}
}
