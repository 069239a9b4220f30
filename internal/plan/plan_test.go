package plan

import (
	"testing"

	"github.com/voxdesk/voxdesk/internal/models"
)

func TestEffective_TierTable(t *testing.T) {
	catalog := NewCatalog(5, 180)

	cases := []struct {
		plan     string
		calls    int
		duration int
		byok     bool
		crm      bool
		advanced bool
	}{
		{plan: "free", calls: 5, duration: 180},
		{plan: "pro", calls: Unlimited, duration: Unlimited, byok: true, crm: true},
		{plan: "enterprise", calls: Unlimited, duration: Unlimited, byok: true, crm: true, advanced: true},
		{plan: "PRO ", calls: Unlimited, duration: Unlimited, byok: true, crm: true},
		{plan: "platinum", calls: 5, duration: 180},
		{plan: "", calls: 5, duration: 180},
	}
	for _, tc := range cases {
		caps := catalog.Effective(&models.Account{Plan: tc.plan})
		if caps.MaxCallsPerDay != tc.calls || caps.MaxCallDurationSeconds != tc.duration {
			t.Fatalf("plan %q: expected %d calls/%ds, got %d/%d", tc.plan, tc.calls, tc.duration, caps.MaxCallsPerDay, caps.MaxCallDurationSeconds)
		}
		if caps.AllowBYOK != tc.byok || caps.AllowCRM != tc.crm || caps.AllowAdvancedAnalytics != tc.advanced {
			t.Fatalf("plan %q: unexpected flags %+v", tc.plan, caps)
		}
	}
}

func TestEffective_Overrides(t *testing.T) {
	catalog := NewCatalog(5, 180)
	calls := 50
	seconds := 600
	caps := catalog.Effective(&models.Account{Plan: "free", DailyCallOverride: &calls, MaxCallSecondsOverride: &seconds})
	if caps.MaxCallsPerDay != 50 || caps.MaxCallDurationSeconds != 600 {
		t.Fatalf("expected overrides 50/600, got %d/%d", caps.MaxCallsPerDay, caps.MaxCallDurationSeconds)
	}
	if caps.Tier != TierFree || caps.AllowBYOK {
		t.Fatalf("overrides must not change tier flags, got %+v", caps)
	}
}

func TestEffective_ZeroOverrideIsACeiling(t *testing.T) {
	catalog := NewCatalog(5, 180)
	zero := 0
	caps := catalog.Effective(&models.Account{Plan: "pro", DailyCallOverride: &zero})
	if caps.MaxCallsPerDay != 0 {
		t.Fatalf("expected 0 calls/day to stay a ceiling, got %d", caps.MaxCallsPerDay)
	}
	below := -7
	caps = catalog.Effective(&models.Account{Plan: "free", DailyCallOverride: &below})
	if caps.MaxCallsPerDay != 5 {
		t.Fatalf("expected out-of-range override to be ignored, got %d", caps.MaxCallsPerDay)
	}
	if free := NewCatalog(-3, 180).ForTier(TierFree); free.MaxCallsPerDay != Unlimited {
		t.Fatalf("expected negative allowance to mean unlimited, got %d", free.MaxCallsPerDay)
	}
}

func TestEffective_NilAccountIsAnonymous(t *testing.T) {
	catalog := NewCatalog(3, 60)
	caps := catalog.Effective(nil)
	if caps.Tier != TierFree || caps.MaxCallsPerDay != 3 {
		t.Fatalf("expected anonymous free caps, got %+v", caps)
	}
}

func TestParseTier(t *testing.T) {
	if tier, ok := ParseTier(" Enterprise"); !ok || tier != TierEnterprise {
		t.Fatalf("expected enterprise, got %q %v", tier, ok)
	}
	if _, ok := ParseTier("gold"); ok {
		t.Fatalf("expected unknown tier to fail")
	}
}

func TestCatalog_All(t *testing.T) {
	all := NewCatalog(3, 60).All()
	if len(all) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(all))
	}
	if all[0].Tier != TierFree || all[1].Tier != TierPro || all[2].Tier != TierEnterprise {
		t.Fatalf("unexpected order %+v", all)
	}
	if all[0].MaxCallsPerDay != 3 {
		t.Fatalf("free tier allowance not applied: %+v", all[0])
	}
}
