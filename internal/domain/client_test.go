package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCreditsForPlan(t *testing.T) {
	cases := []struct {
		name    string
		plan    string
		want    Credits
		wantErr bool
	}{
		{name: "numeric", plan: "starter_100", want: NumericCredits(100)},
		{name: "zero", plan: "trial_0", want: NumericCredits(0)},
		{name: "unlimited", plan: "enterprise_Unlimited", want: UnlimitedCredits()},
		{name: "unlimited lowercase", plan: "enterprise_unlimited", want: UnlimitedCredits()},
		{name: "multiple underscores", plan: "in_pro_500", want: NumericCredits(500)},
		{name: "missing token", plan: "starter", wantErr: true},
		{name: "trailing underscore", plan: "starter_", wantErr: true},
		{name: "negative", plan: "starter_-5", wantErr: true},
		{name: "garbage token", plan: "starter_lots", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CreditsForPlan(tc.plan)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedPlan) {
					t.Fatalf("expected ErrUnsupportedPlan, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCreditsJSONRoundTrip(t *testing.T) {
	for _, c := range []Credits{NumericCredits(0), NumericCredits(42), UnlimitedCredits()} {
		b, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("marshal %v: %v", c, err)
		}
		var back Credits
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != c {
			t.Fatalf("round trip changed %v to %v", c, back)
		}
	}
}

func TestCreditsUnmarshalRejectsBadValues(t *testing.T) {
	for _, raw := range []string{`-1`, `"lots"`, `true`, `{}`} {
		var c Credits
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}
